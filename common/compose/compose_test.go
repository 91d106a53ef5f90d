package compose

import (
	"context"
	"testing"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner/runnertest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T, file string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/srv/app", 0o755))
	if file != "" {
		require.NoError(t, afero.WriteFile(fsys, "/srv/app/"+file, []byte("services: {}\n"), 0o644))
	}
	return fsys
}

func TestDetectFile(t *testing.T) {
	for _, name := range FileNames {
		t.Run(name, func(t *testing.T) {
			got, ok := DetectFile(newProject(t, name), "/srv/app")
			assert.True(t, ok)
			assert.Equal(t, name, got)
		})
	}
	_, ok := DetectFile(newProject(t, ""), "/srv/app")
	assert.False(t, ok)
}

func TestUpArguments(t *testing.T) {
	fake := runnertest.NewFake()
	c := New(fake, WithFs(newProject(t, "docker-compose.yml")))

	result := c.Up(context.Background(), "/srv/app", UpOptions{Detach: true, Build: true})
	require.True(t, result.Success)
	assert.Equal(t, "services started successfully", result.Message)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "docker-compose", calls[0].Program)
	assert.Equal(t, []string{"-f", "docker-compose.yml", "up", "-d", "--build"}, calls[0].Args)
	assert.Equal(t, "/srv/app", calls[0].Dir)
	assert.Equal(t, UpTimeout, calls[0].Timeout)
}

func TestFallbackToComposePlugin(t *testing.T) {
	fake := runnertest.NewFake().
		On("docker-compose", runnertest.Missing("docker-compose")).
		On("docker", runnertest.Output("NAME   STATUS\nweb    Up 3 minutes\n"))
	c := New(fake, WithFs(newProject(t, "compose.yaml")))

	result := c.Ps(context.Background(), "/srv/app")
	require.True(t, result.Success)
	assert.Contains(t, result.Stdout, "Up 3 minutes")

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"compose", "-f", "compose.yaml", "ps"}, calls[1].Args)
}

func TestNoFallbackOnFailure(t *testing.T) {
	fake := runnertest.NewFake().On("docker-compose", runnertest.Fail(1, "service \"db\" failed to build"))
	c := New(fake, WithFs(newProject(t, "docker-compose.yml")))

	result := c.Up(context.Background(), "/srv/app", UpOptions{Detach: true})
	assert.False(t, result.Success)
	assert.Equal(t, outcome.ProcessFailure, result.ErrorKind)
	assert.Equal(t, []string{"docker-compose"}, fake.Programs())
}

func TestNothingInstalled(t *testing.T) {
	fake := runnertest.NewFake().
		On("docker-compose", runnertest.Missing("docker-compose")).
		On("docker", runnertest.Missing("docker"))
	c := New(fake, WithFs(newProject(t, "docker-compose.yml")))
	result := c.Down(context.Background(), "/srv/app", true)
	assert.Equal(t, outcome.NotFound, result.ErrorKind)
	assert.Equal(t, []string{"-f", "docker-compose.yml", "down", "-v"}, fake.Calls()[0].Args)
}

func TestMissingComposeFile(t *testing.T) {
	fake := runnertest.NewFake()
	c := New(fake, WithFs(newProject(t, "")))
	result := c.Restart(context.Background(), "/srv/app", "web")
	assert.Equal(t, outcome.InvalidArgument, result.ErrorKind)
	assert.Empty(t, fake.Calls())
}

func TestLogsAndRestartArguments(t *testing.T) {
	fake := runnertest.NewFake()
	c := New(fake, WithFs(newProject(t, "docker-compose.yml")))

	c.Logs(context.Background(), "/srv/app", "", 0)
	c.Logs(context.Background(), "/srv/app", "web", 20)
	c.Restart(context.Background(), "/srv/app", "web")

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"-f", "docker-compose.yml", "logs", "--no-color", "--tail=100"}, calls[0].Args)
	assert.Equal(t, []string{"-f", "docker-compose.yml", "logs", "--no-color", "--tail=20", "web"}, calls[1].Args)
	assert.Equal(t, []string{"-f", "docker-compose.yml", "restart", "web"}, calls[2].Args)
	assert.Equal(t, RestartTimeout, calls[2].Timeout)
}
