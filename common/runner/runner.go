// Package runner executes external programs with a timeout and reports the result as an
// outcome.StepOutcome. It is the only place in deploykit that spawns processes.
package runner

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
)

const (
	// DefaultTimeout is used for commands that don't specify a timeout.
	DefaultTimeout = 60 * time.Second
	// waitDelay bounds how long Run waits for output pipes to close after the process was killed.
	// Without it a grandchild that inherited stdout could keep Run blocked past the timeout.
	waitDelay = 2 * time.Second
)

// Runner runs a single external command. Implementations never retry and never spawn more than one
// child process per call.
type Runner interface {
	Run(ctx context.Context, cmd Command) outcome.StepOutcome
}

// Command describes one external program invocation.
type Command struct {
	Program string
	Args    []string
	// Dir is the working directory. The current directory is used when empty.
	Dir string
	// Env entries override the inherited environment of the current process.
	Env     map[string]string
	Timeout time.Duration
	// Stdin is written to the process if set. Used for secrets so they don't show up in the
	// process table.
	Stdin []byte
}

// New is a convenience constructor for a Command with the default timeout.
func New(program string, args ...string) Command {
	return Command{
		Program: program,
		Args:    args,
		Timeout: DefaultTimeout,
	}
}

func (c Command) WithDir(dir string) Command {
	c.Dir = dir
	return c
}

func (c Command) WithTimeout(timeout time.Duration) Command {
	c.Timeout = timeout
	return c
}

func (c Command) WithStdin(stdin []byte) Command {
	c.Stdin = stdin
	return c
}

func (c Command) WithEnv(key, value string) Command {
	env := make(map[string]string, len(c.Env)+1)
	maps.Copy(env, c.Env)
	env[key] = value
	c.Env = env
	return c
}

// environ returns the Env overrides as KEY=VALUE pairs sorted by key.
func (c Command) environ() []string {
	keys := slices.Sorted(maps.Keys(c.Env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// String returns the command line as it would be typed into a shell. Intended for logging and
// messages, not for executing.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return fmt.Sprintf("%s %s", c.Program, strings.Join(c.Args, " "))
}
