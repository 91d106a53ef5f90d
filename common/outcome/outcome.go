// Package outcome defines the result record returned by every external command invocation and by
// every step of a deployment. Results are closed structs so callers can branch on ErrorKind instead
// of parsing free-text messages.
package outcome

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ErrorKind int

const (
	None ErrorKind = iota
	NotFound
	Timeout
	InvalidArgument
	ProcessFailure
	Unexpected
)

func (k ErrorKind) String() string {
	switch k {
	case None:
		return "none"
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case InvalidArgument:
		return "invalid_argument"
	case ProcessFailure:
		return "process_failure"
	case Unexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func ErrorKindFromString(s string) ErrorKind {
	switch strings.ToLower(s) {
	case "none", "":
		return None
	case "not_found":
		return NotFound
	case "timeout":
		return Timeout
	case "invalid_argument":
		return InvalidArgument
	case "process_failure":
		return ProcessFailure
	default:
		return Unexpected
	}
}

func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ErrorKindFromString(s)
	return nil
}

// StepOutcome is the uniform result of an external command or a deployment step. Stdout and Stderr
// are the raw, unparsed process output. An empty Stderr means no error output was captured.
type StepOutcome struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Stdout    string    `json:"stdout,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	ErrorKind ErrorKind `json:"error_kind"`
	// ExitCode is -1 when the process never exited on its own (not found, timeout, etc.).
	ExitCode int `json:"exit_code"`
	// Err is the underlying cause if one is available. It is only kept for callers that want to
	// inspect it with errors.Is/As and is never serialized.
	Err error `json:"-"`
}

// Succeeded returns a successful outcome with the provided message.
func Succeeded(message string) StepOutcome {
	return StepOutcome{
		Success:   true,
		Message:   message,
		ErrorKind: None,
	}
}

// Failed returns a failed outcome. A failed outcome always carries an error kind so kind None is
// treated as Unexpected.
func Failed(kind ErrorKind, message string) StepOutcome {
	if kind == None {
		kind = Unexpected
	}
	return StepOutcome{
		Success:   false,
		Message:   message,
		ErrorKind: kind,
		ExitCode:  -1,
	}
}

// Failedf is Failed with fmt.Sprintf style formatting.
func Failedf(kind ErrorKind, format string, args ...any) StepOutcome {
	return Failed(kind, fmt.Sprintf(format, args...))
}

// FromError builds a failed outcome from err keeping it as the cause.
func FromError(kind ErrorKind, err error) StepOutcome {
	o := Failed(kind, err.Error())
	o.Err = err
	return o
}

// WithMessage returns a copy of the outcome with the message replaced. Output and error kind are
// kept so a caller can reword a result without losing the process output.
func (o StepOutcome) WithMessage(message string) StepOutcome {
	o.Message = message
	return o
}

// Error allows a failed outcome to be used where an error is expected. It returns an empty string
// for successful outcomes.
func (o StepOutcome) Error() string {
	if o.Success {
		return ""
	}
	if o.Stderr != "" {
		return fmt.Sprintf("%s (%s): %s", o.Message, o.ErrorKind, strings.TrimSpace(o.Stderr))
	}
	return fmt.Sprintf("%s (%s)", o.Message, o.ErrorKind)
}

// AsError returns nil for successful outcomes and the outcome itself as an error otherwise.
func (o StepOutcome) AsError() error {
	if o.Success {
		return nil
	}
	return o
}

func (o StepOutcome) Unwrap() error {
	return o.Err
}
