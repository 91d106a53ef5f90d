// Package container wraps the docker command line tool for single container deployments.
package container

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
)

const (
	PullTimeout    = 300 * time.Second
	RunTimeout     = 60 * time.Second
	DefaultTimeout = 30 * time.Second
	// StopGrace is how long a container gets to shut down before it is killed.
	StopGrace = 10 * time.Second
	// stopMargin is added to the grace period for the command timeout.
	stopMargin  = 30 * time.Second
	DefaultTail = 100
)

type Client struct {
	runner runner.Runner
}

func New(r runner.Runner) *Client {
	return &Client{runner: r}
}

// RunSpec describes a detached container. Env entries are KEY=VALUE pairs and volumes are
// HOST:CONTAINER pairs, both passed to docker in the order given.
type RunSpec struct {
	Image   string
	Name    string
	Port    int
	Env     []string
	Volumes []string
}

// Args returns the docker run arguments.
func (s RunSpec) Args() []string {
	args := []string{"run", "-d", "--name", s.Name}
	if s.Port > 0 {
		args = append(args, "-p", fmt.Sprintf("%d:%d", s.Port, s.Port))
	}
	for _, e := range s.Env {
		args = append(args, "-e", e)
	}
	for _, v := range s.Volumes {
		args = append(args, "-v", v)
	}
	return append(args, s.Image)
}

func (c *Client) Pull(ctx context.Context, image string) outcome.StepOutcome {
	if image == "" {
		return outcome.Failed(outcome.InvalidArgument, "no image specified")
	}
	result := c.runner.Run(ctx, runner.New("docker", "pull", image).WithTimeout(PullTimeout))
	if !result.Success {
		return result.WithMessage(fmt.Sprintf("failed to pull image %s: %s", image, result.Message))
	}
	return result.WithMessage(fmt.Sprintf("pulled image %s", image))
}

// Run starts a detached container. On success the container ID is available with ContainerID.
func (c *Client) Run(ctx context.Context, spec RunSpec) outcome.StepOutcome {
	if spec.Image == "" || spec.Name == "" {
		return outcome.Failed(outcome.InvalidArgument, "an image and container name are required")
	}
	result := c.runner.Run(ctx, runner.New("docker", spec.Args()...).WithTimeout(RunTimeout))
	if !result.Success {
		return result.WithMessage(fmt.Sprintf("failed to start container %s: %s", spec.Name, result.Message))
	}
	return result.WithMessage(fmt.Sprintf("container %s started (%s)", spec.Name, ContainerID(result)))
}

// ContainerID extracts the ID docker run prints on success.
func ContainerID(o outcome.StepOutcome) string {
	return strings.TrimSpace(o.Stdout)
}

func (c *Client) List(ctx context.Context, all bool) outcome.StepOutcome {
	args := []string{"ps"}
	if all {
		args = append(args, "-a")
	}
	return c.runner.Run(ctx, runner.New("docker", args...).WithTimeout(DefaultTimeout))
}

// Logs returns the last tail lines, optionally only those newer than since (e.g. "10m").
func (c *Client) Logs(ctx context.Context, name string, tail int, since string) outcome.StepOutcome {
	if name == "" {
		return outcome.Failed(outcome.InvalidArgument, "no container specified")
	}
	if tail <= 0 {
		tail = DefaultTail
	}
	args := []string{"logs", "--tail", strconv.Itoa(tail)}
	if since != "" {
		args = append(args, "--since", since)
	}
	return c.runner.Run(ctx, runner.New("docker", append(args, name)...).WithTimeout(DefaultTimeout))
}

func (c *Client) Stop(ctx context.Context, name string, grace time.Duration) outcome.StepOutcome {
	return c.graceful(ctx, "stop", name, grace)
}

func (c *Client) Restart(ctx context.Context, name string, grace time.Duration) outcome.StepOutcome {
	return c.graceful(ctx, "restart", name, grace)
}

func (c *Client) graceful(ctx context.Context, action string, name string, grace time.Duration) outcome.StepOutcome {
	if name == "" {
		return outcome.Failed(outcome.InvalidArgument, "no container specified")
	}
	if grace <= 0 {
		grace = StopGrace
	}
	seconds := int(grace.Round(time.Second) / time.Second)
	cmd := runner.New("docker", action, "-t", strconv.Itoa(seconds), name).WithTimeout(grace + stopMargin)
	result := c.runner.Run(ctx, cmd)
	if result.Success {
		return result.WithMessage(fmt.Sprintf("container %s: %s succeeded", name, action))
	}
	return result
}

func (c *Client) Start(ctx context.Context, name string) outcome.StepOutcome {
	if name == "" {
		return outcome.Failed(outcome.InvalidArgument, "no container specified")
	}
	return c.runner.Run(ctx, runner.New("docker", "start", name).WithTimeout(RunTimeout))
}

// Inspect returns the raw JSON docker prints for the container.
func (c *Client) Inspect(ctx context.Context, name string) outcome.StepOutcome {
	if name == "" {
		return outcome.Failed(outcome.InvalidArgument, "no container specified")
	}
	return c.runner.Run(ctx, runner.New("docker", "inspect", name).WithTimeout(DefaultTimeout))
}

// Stats returns a single resource usage sample for one or all running containers.
func (c *Client) Stats(ctx context.Context, name string) outcome.StepOutcome {
	args := []string{"stats", "--no-stream"}
	if name != "" {
		args = append(args, name)
	}
	return c.runner.Run(ctx, runner.New("docker", args...).WithTimeout(DefaultTimeout))
}
