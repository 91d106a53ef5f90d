package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
)

const (
	BuildTimeout = 600 * time.Second
	PushTimeout  = 600 * time.Second
)

type BuildSpec struct {
	// ContextDir is the build context. Dockerfile is relative to it unless absolute.
	ContextDir string
	Dockerfile string
	Tags       []string
	// BuildArgs are KEY=VALUE pairs passed in the order given.
	BuildArgs []string
	// Platforms triggers a buildx build (e.g. linux/amd64,linux/arm64).
	Platforms []string
	NoCache   bool
	// Push makes a multi-platform build push the result. buildx keeps multi-platform images out
	// of the local image store so they can't be pushed in a separate step.
	Push bool
}

// PushesOnBuild reports if Build already pushes the tags.
func (s BuildSpec) PushesOnBuild() bool {
	return s.Push && len(s.Platforms) > 0
}

// Args returns the docker arguments for the build.
func (s BuildSpec) Args() []string {
	args := []string{"build"}
	if len(s.Platforms) > 0 {
		args = []string{"buildx", "build", "--platform", strings.Join(s.Platforms, ",")}
	}
	for _, tag := range s.Tags {
		args = append(args, "-t", tag)
	}
	if s.Dockerfile != "" {
		dockerfile := s.Dockerfile
		if !filepath.IsAbs(dockerfile) {
			dockerfile = filepath.Join(s.ContextDir, dockerfile)
		}
		args = append(args, "-f", dockerfile)
	}
	for _, arg := range s.BuildArgs {
		args = append(args, "--build-arg", arg)
	}
	if s.NoCache {
		args = append(args, "--no-cache")
	}
	if s.PushesOnBuild() {
		args = append(args, "--push")
	}
	return append(args, s.ContextDir)
}

func (c *Client) Build(ctx context.Context, spec BuildSpec) outcome.StepOutcome {
	if spec.ContextDir == "" {
		return outcome.Failed(outcome.InvalidArgument, "no build context specified")
	}
	if len(spec.Platforms) > 0 {
		if err := c.RequireCapability(ctx, Buildx); err != nil {
			return outcome.FromError(outcome.NotFound, fmt.Errorf("multi-platform builds require buildx: %w", err))
		}
	}
	timeout := BuildTimeout
	if spec.PushesOnBuild() {
		if len(spec.Tags) == 0 {
			return outcome.FromError(outcome.InvalidArgument, fmt.Errorf("%w: pushing a build requires a tag", ErrMissingImage))
		}
		timeout += PushTimeout
	}
	result := c.runner.Run(ctx, runner.New("docker", spec.Args()...).WithTimeout(timeout))
	if !result.Success {
		return result.WithMessage(fmt.Sprintf("build of %s failed: %s", spec.ContextDir, result.Message))
	}
	if spec.PushesOnBuild() {
		return result.WithMessage(fmt.Sprintf("built and pushed %s", strings.Join(spec.Tags, ", ")))
	}
	return result.WithMessage(fmt.Sprintf("built %s", strings.Join(spec.Tags, ", ")))
}

func (c *Client) Tag(ctx context.Context, source string, target string) outcome.StepOutcome {
	if source == "" || target == "" {
		return outcome.FromError(outcome.InvalidArgument, ErrMissingImage)
	}
	result := c.runner.Run(ctx, runner.New("docker", "tag", source, target).WithTimeout(imagesTimeout))
	if result.Success {
		return result.WithMessage(fmt.Sprintf("tagged %s as %s", source, target))
	}
	return result
}

func (c *Client) Push(ctx context.Context, image string) outcome.StepOutcome {
	if image == "" {
		return outcome.FromError(outcome.InvalidArgument, ErrMissingImage)
	}
	result := c.runner.Run(ctx, runner.New("docker", "push", image).WithTimeout(PushTimeout))
	if !result.Success {
		return result.WithMessage(fmt.Sprintf("push of %s failed: %s", image, result.Message))
	}
	return result.WithMessage(fmt.Sprintf("pushed %s", image))
}

// List returns the raw local image table, optionally restricted to a repository.
func (c *Client) List(ctx context.Context, repository string) outcome.StepOutcome {
	args := []string{"images"}
	if repository != "" {
		args = append(args, repository)
	}
	return c.runner.Run(ctx, runner.New("docker", args...).WithTimeout(imagesTimeout))
}

func (c *Client) Remove(ctx context.Context, image string, force bool) outcome.StepOutcome {
	if image == "" {
		return outcome.FromError(outcome.InvalidArgument, ErrMissingImage)
	}
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	result := c.runner.Run(ctx, runner.New("docker", append(args, image)...).WithTimeout(imagesTimeout))
	if result.Success {
		return result.WithMessage(fmt.Sprintf("removed %s", image))
	}
	return result
}
