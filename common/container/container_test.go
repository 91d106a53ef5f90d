package container

import (
	"context"
	"testing"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner/runnertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSpecArgs(t *testing.T) {
	spec := RunSpec{
		Image:   "redis:7",
		Name:    "cache",
		Port:    6379,
		Env:     []string{"ZETA=1", "ALPHA=2"},
		Volumes: []string{"/data/redis:/data"},
	}
	assert.Equal(t, []string{
		"run", "-d", "--name", "cache",
		"-p", "6379:6379",
		"-e", "ZETA=1", "-e", "ALPHA=2",
		"-v", "/data/redis:/data",
		"redis:7",
	}, spec.Args())

	assert.Equal(t, []string{"run", "-d", "--name", "web", "nginx"}, RunSpec{Image: "nginx", Name: "web"}.Args())
}

func TestRun(t *testing.T) {
	fake := runnertest.NewFake().On("docker", runnertest.Output("4f2a9c1e\n"))
	c := New(fake)
	result := c.Run(context.Background(), RunSpec{Image: "nginx", Name: "web"})
	require.True(t, result.Success)
	assert.Equal(t, "4f2a9c1e", ContainerID(result))
	assert.Equal(t, RunTimeout, fake.Calls()[0].Timeout)

	result = c.Run(context.Background(), RunSpec{Image: "nginx"})
	assert.Equal(t, outcome.InvalidArgument, result.ErrorKind)
	assert.Len(t, fake.Calls(), 1)
}

func TestPullFailureKeepsStderr(t *testing.T) {
	fake := runnertest.NewFake().On("docker", runnertest.Fail(1, "manifest for nope:latest not found"))
	result := New(fake).Pull(context.Background(), "nope")
	assert.Equal(t, outcome.ProcessFailure, result.ErrorKind)
	assert.Equal(t, "manifest for nope:latest not found", result.Stderr)
	assert.Equal(t, PullTimeout, fake.Calls()[0].Timeout)
}

func TestCommandArguments(t *testing.T) {
	tests := []struct {
		name    string
		call    func(c *Client) outcome.StepOutcome
		args    []string
		timeout time.Duration
	}{
		{"list", func(c *Client) outcome.StepOutcome { return c.List(context.Background(), false) }, []string{"ps"}, DefaultTimeout},
		{"list all", func(c *Client) outcome.StepOutcome { return c.List(context.Background(), true) }, []string{"ps", "-a"}, DefaultTimeout},
		{"logs", func(c *Client) outcome.StepOutcome { return c.Logs(context.Background(), "web", 0, "") }, []string{"logs", "--tail", "100", "web"}, DefaultTimeout},
		{"logs since", func(c *Client) outcome.StepOutcome { return c.Logs(context.Background(), "web", 5, "10m") }, []string{"logs", "--tail", "5", "--since", "10m", "web"}, DefaultTimeout},
		{"stop", func(c *Client) outcome.StepOutcome { return c.Stop(context.Background(), "web", 0) }, []string{"stop", "-t", "10", "web"}, 40 * time.Second},
		{"restart", func(c *Client) outcome.StepOutcome { return c.Restart(context.Background(), "web", 20*time.Second) }, []string{"restart", "-t", "20", "web"}, 50 * time.Second},
		{"start", func(c *Client) outcome.StepOutcome { return c.Start(context.Background(), "web") }, []string{"start", "web"}, RunTimeout},
		{"inspect", func(c *Client) outcome.StepOutcome { return c.Inspect(context.Background(), "web") }, []string{"inspect", "web"}, DefaultTimeout},
		{"stats", func(c *Client) outcome.StepOutcome { return c.Stats(context.Background(), "") }, []string{"stats", "--no-stream"}, DefaultTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := runnertest.NewFake()
			result := tt.call(New(fake))
			require.True(t, result.Success)
			calls := fake.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "docker", calls[0].Program)
			assert.Equal(t, tt.args, calls[0].Args)
			assert.Equal(t, tt.timeout, calls[0].Timeout)
		})
	}
}

func TestMissingContainerName(t *testing.T) {
	fake := runnertest.NewFake()
	c := New(fake)
	for _, result := range []outcome.StepOutcome{
		c.Logs(context.Background(), "", 0, ""),
		c.Stop(context.Background(), "", 0),
		c.Start(context.Background(), ""),
		c.Inspect(context.Background(), ""),
	} {
		assert.Equal(t, outcome.InvalidArgument, result.ErrorKind)
	}
	assert.Empty(t, fake.Calls())
}
