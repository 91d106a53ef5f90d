package runner

import "errors"

var (
	ErrProgramNotFound = errors.New("program not found")
	ErrTimeout         = errors.New("command timed out")
	ErrCanceled        = errors.New("command canceled")
)
