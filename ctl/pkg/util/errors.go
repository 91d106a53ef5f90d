package util

import "errors"

// ExitCode is returned by deployctl when a command fails.
type ExitCode int

const (
	Success ExitCode = iota
	GeneralError
	// PartialSuccess is used when a command deployed or probed several projects and at least one
	// of them failed.
	PartialSuccess
	// Unhealthy is used by probe when the probed deployment is not running.
	Unhealthy
)

// CtlError allows commands to control the exit code of deployctl.
type CtlError struct {
	err      error
	exitCode ExitCode
}

func NewCtlError(err error, exitCode ExitCode) CtlError {
	return CtlError{err: err, exitCode: exitCode}
}

func (e CtlError) Error() string {
	return e.err.Error()
}

func (e CtlError) Unwrap() error {
	return e.err
}

func (e CtlError) GetExitCode() ExitCode {
	return e.exitCode
}

// GetExitCode returns the exit code for err. Errors that are not a CtlError exit with GeneralError.
func GetExitCode(err error) ExitCode {
	if err == nil {
		return Success
	}
	var ctlErr CtlError
	if errors.As(err, &ctlErr) {
		return ctlErr.exitCode
	}
	return GeneralError
}
