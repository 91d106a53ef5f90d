package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"reflect"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"go.uber.org/zap"
)

// ExecRunner runs commands as local child processes using os/exec.
type ExecRunner struct {
	log *zap.Logger
}

var _ Runner = &ExecRunner{}

type ExecRunnerOpt func(*ExecRunner)

func WithLogger(log *zap.Logger) ExecRunnerOpt {
	return func(r *ExecRunner) {
		r.log = log.With(zap.String("component", path.Base(reflect.TypeOf(ExecRunner{}).PkgPath())))
	}
}

func NewExecRunner(opts ...ExecRunnerOpt) *ExecRunner {
	r := &ExecRunner{
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command and blocks until it exits or its timeout elapses. On timeout the
// process and everything it spawned is killed. Run never returns a zero ErrorKind for a failed
// outcome and never panics because of the external program.
func (r *ExecRunner) Run(ctx context.Context, c Command) outcome.StepOutcome {
	if c.Program == "" {
		return outcome.Failed(outcome.InvalidArgument, "no program specified")
	}
	if c.Dir != "" {
		info, err := os.Stat(c.Dir)
		if err != nil {
			return outcome.FromError(outcome.InvalidArgument, fmt.Errorf("working directory %q is not accessible: %w", c.Dir, err))
		}
		if !info.IsDir() {
			return outcome.Failedf(outcome.InvalidArgument, "working directory %q is not a directory", c.Dir)
		}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.environ()...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	killProcessGroupOnCancel(cmd)

	log := r.log.With(zap.String("program", c.Program), zap.Strings("args", c.Args), zap.String("dir", c.Dir))
	log.Debug("running command", zap.Duration("timeout", timeout))
	start := time.Now()
	err := cmd.Run()
	result := classify(ctx, c, timeout, err)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	log.Debug("command finished", zap.Duration("elapsed", time.Since(start)), zap.Stringer("errorKind", result.ErrorKind), zap.Int("exitCode", result.ExitCode))
	return result
}

func classify(ctx context.Context, c Command, timeout time.Duration, err error) outcome.StepOutcome {
	if err == nil {
		o := outcome.Succeeded(fmt.Sprintf("%s completed successfully", c.Program))
		o.ExitCode = 0
		return o
	}

	// The context has to be checked first because a killed process also reports an exit error.
	switch ctx.Err() {
	case context.DeadlineExceeded:
		o := outcome.Failedf(outcome.Timeout, "%s timed out after %s", c.Program, timeout)
		o.Err = fmt.Errorf("%w: %w", ErrTimeout, err)
		return o
	case context.Canceled:
		o := outcome.Failedf(outcome.Unexpected, "%s was canceled", c.Program)
		o.Err = fmt.Errorf("%w: %w", ErrCanceled, err)
		return o
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		o := outcome.Failedf(outcome.ProcessFailure, "%s exited with status %d", c.Program, exitErr.ExitCode())
		o.ExitCode = exitErr.ExitCode()
		o.Err = err
		return o
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		o := outcome.Failedf(outcome.NotFound, "%s not found, ensure it is installed and in PATH", c.Program)
		o.Err = fmt.Errorf("%w: %w", ErrProgramNotFound, err)
		return o
	}

	return outcome.FromError(outcome.Unexpected, fmt.Errorf("unable to run %s: %w", c.Program, err))
}
