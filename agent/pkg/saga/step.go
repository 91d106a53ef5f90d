package saga

import (
	"fmt"
	"strings"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
)

type StepName string

const (
	Acquire             StepName = "acquire"
	InstallDependencies StepName = "install_dependencies"
	Start               StepName = "start"
)

type StepStatus int

const (
	Pending StepStatus = iota
	Running
	Success
	Failed
	Skipped
)

func (s StepStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StepStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "pending":
		*s = Pending
	case "running":
		*s = Running
	case "success":
		*s = Success
	case "failed":
		*s = Failed
	case "skipped":
		*s = Skipped
	default:
		return fmt.Errorf("invalid step status: %s", text)
	}
	return nil
}

// Terminal reports if no further transitions are allowed from the status.
func (s StepStatus) Terminal() bool {
	return s == Success || s == Failed || s == Skipped
}

// canTransition allows Pending -> Running -> Success|Failed and Pending -> Skipped.
func (s StepStatus) canTransition(to StepStatus) bool {
	switch s {
	case Pending:
		return to == Running || to == Skipped
	case Running:
		return to == Success || to == Failed
	default:
		return false
	}
}

// Step is one entry of the deployment log. Outcome is nil until the step reaches a terminal status.
type Step struct {
	Name     StepName             `json:"name"`
	Status   StepStatus           `json:"status"`
	Outcome  *outcome.StepOutcome `json:"outcome,omitempty"`
	Duration time.Duration        `json:"duration"`
}
