package saga

import "errors"

var (
	ErrStepPanicked = errors.New("deployment step panicked")
)
