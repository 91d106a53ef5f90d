// Package runnertest provides a scripted runner.Runner for tests that must not spawn processes.
package runnertest

import (
	"context"
	"slices"
	"sync"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
)

// HandlerFunc can inspect a command and optionally produce its outcome. Returning false falls back
// to the scripted responses.
type HandlerFunc func(cmd runner.Command) (outcome.StepOutcome, bool)

// Fake records every command it is asked to run and replies with scripted outcomes. Responses are
// registered per program and consumed in order, the last response for a program is repeated.
// Programs without responses succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	calls     []runner.Command
	responses map[string][]outcome.StepOutcome
	handlers  []HandlerFunc
}

var _ runner.Runner = &Fake{}

func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]outcome.StepOutcome),
	}
}

// On registers responses for the given program.
func (f *Fake) On(program string, results ...outcome.StepOutcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[program] = append(f.responses[program], results...)
	return f
}

// OnFunc registers a handler that is consulted before scripted responses.
func (f *Fake) OnFunc(fn HandlerFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fn)
	return f
}

func (f *Fake) Run(ctx context.Context, cmd runner.Command) outcome.StepOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	handlers := slices.Clone(f.handlers)
	f.mu.Unlock()

	for _, h := range handlers {
		if result, ok := h(cmd); ok {
			return result
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.responses[cmd.Program]
	switch len(queue) {
	case 0:
		return Output("")
	case 1:
		return queue[0]
	default:
		f.responses[cmd.Program] = queue[1:]
		return queue[0]
	}
}

// Calls returns a copy of all commands run so far.
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Programs returns the program of each command run so far in call order.
func (f *Fake) Programs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	programs := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		programs = append(programs, c.Program)
	}
	return programs
}

// Called reports if the program was run at least once.
func (f *Fake) Called(program string) bool {
	return slices.Contains(f.Programs(), program)
}

// Output is a successful outcome with the provided stdout.
func Output(stdout string) outcome.StepOutcome {
	o := outcome.Succeeded("completed successfully")
	o.ExitCode = 0
	o.Stdout = stdout
	return o
}

// Missing is the outcome the exec runner reports when a program is not installed.
func Missing(program string) outcome.StepOutcome {
	return outcome.Failedf(outcome.NotFound, "%s not found, ensure it is installed and in PATH", program)
}

// Fail is a non-zero exit with the provided stderr.
func Fail(exitCode int, stderr string) outcome.StepOutcome {
	o := outcome.Failedf(outcome.ProcessFailure, "exited with status %d", exitCode)
	o.ExitCode = exitCode
	o.Stderr = stderr
	return o
}

// TimedOut is the outcome of a command killed after its timeout.
func TimedOut() outcome.StepOutcome {
	return outcome.Failed(outcome.Timeout, "timed out")
}
