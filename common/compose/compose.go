// Package compose wraps the docker-compose command line tool for projects that ship a compose file.
package compose

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileNames are the compose file names that are detected, in order of preference.
var FileNames = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}

const (
	UpTimeout      = 300 * time.Second
	DownTimeout    = 120 * time.Second
	LogsTimeout    = 30 * time.Second
	PsTimeout      = 30 * time.Second
	RestartTimeout = 120 * time.Second
	DefaultTail    = 100
)

// DetectFile returns the name of the compose file in projectPath if there is one.
func DetectFile(fsys afero.Fs, projectPath string) (string, bool) {
	for _, name := range FileNames {
		info, err := fsys.Stat(filepath.Join(projectPath, name))
		if err == nil && !info.IsDir() {
			return name, true
		}
	}
	return "", false
}

type Client struct {
	runner runner.Runner
	fs     afero.Fs
	log    *zap.Logger
}

type Opt func(*Client)

func WithFs(fsys afero.Fs) Opt {
	return func(c *Client) {
		c.fs = fsys
	}
}

func WithLogger(log *zap.Logger) Opt {
	return func(c *Client) {
		c.log = log.With(zap.String("component", path.Base(reflect.TypeOf(Client{}).PkgPath())))
	}
}

func New(r runner.Runner, opts ...Opt) *Client {
	c := &Client{
		runner: r,
		fs:     afero.NewOsFs(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasFile reports if projectPath contains a compose file.
func (c *Client) HasFile(projectPath string) bool {
	_, ok := DetectFile(c.fs, projectPath)
	return ok
}

type UpOptions struct {
	Detach bool
	Build  bool
}

func (c *Client) Up(ctx context.Context, projectPath string, opts UpOptions) outcome.StepOutcome {
	args := []string{"up"}
	if opts.Detach {
		args = append(args, "-d")
	}
	if opts.Build {
		args = append(args, "--build")
	}
	result := c.run(ctx, projectPath, UpTimeout, args...)
	if result.Success {
		return result.WithMessage("services started successfully")
	}
	return result
}

func (c *Client) Down(ctx context.Context, projectPath string, removeVolumes bool) outcome.StepOutcome {
	args := []string{"down"}
	if removeVolumes {
		args = append(args, "-v")
	}
	result := c.run(ctx, projectPath, DownTimeout, args...)
	if result.Success {
		return result.WithMessage("services stopped successfully")
	}
	return result
}

// Logs returns the last tail lines of logs for a service or for all services if service is empty.
func (c *Client) Logs(ctx context.Context, projectPath string, service string, tail int) outcome.StepOutcome {
	if tail <= 0 {
		tail = DefaultTail
	}
	args := []string{"logs", "--no-color", "--tail=" + strconv.Itoa(tail)}
	if service != "" {
		args = append(args, service)
	}
	return c.run(ctx, projectPath, LogsTimeout, args...)
}

// Ps returns the raw service status table.
func (c *Client) Ps(ctx context.Context, projectPath string) outcome.StepOutcome {
	return c.run(ctx, projectPath, PsTimeout, "ps")
}

func (c *Client) Restart(ctx context.Context, projectPath string, service string) outcome.StepOutcome {
	args := []string{"restart"}
	if service != "" {
		args = append(args, service)
	}
	result := c.run(ctx, projectPath, RestartTimeout, args...)
	if result.Success {
		return result.WithMessage("services restarted successfully")
	}
	return result
}

// run executes docker-compose in projectPath. If docker-compose is not installed the compose
// plugin of the docker CLI is tried instead. Any other failure is returned as is.
func (c *Client) run(ctx context.Context, projectPath string, timeout time.Duration, args ...string) outcome.StepOutcome {
	file, ok := DetectFile(c.fs, projectPath)
	if !ok {
		return outcome.Failedf(outcome.InvalidArgument, "no compose file found in %s", projectPath)
	}
	cmd := runner.Command{
		Program: "docker-compose",
		Args:    append([]string{"-f", file}, args...),
		Dir:     projectPath,
		Timeout: timeout,
	}
	result := c.runner.Run(ctx, cmd)
	if result.ErrorKind != outcome.NotFound {
		return result
	}
	c.log.Debug("docker-compose not found, falling back to the docker compose plugin")
	cmd.Program = "docker"
	cmd.Args = append([]string{"compose"}, cmd.Args...)
	result = c.runner.Run(ctx, cmd)
	if result.ErrorKind == outcome.NotFound {
		return result.WithMessage(fmt.Sprintf("neither docker-compose nor docker compose is available (%s)", result.Message))
	}
	return result
}
