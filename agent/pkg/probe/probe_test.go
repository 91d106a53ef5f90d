package probe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner/runnertest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const psOutput = `USER       PID %CPU %MEM    VSZ   RSS TTY      STAT START   TIME COMMAND
root         1  0.0  0.1 167744 11520 ?        Ss   09:12   0:02 /sbin/init
app       4242  1.2  2.3 912344 95112 ?        Sl   09:15   0:31 python3 -m uvicorn --app-dir /srv/Shop-API main:app
app       4250  0.0  0.5 112344 20112 ?        S    09:15   0:00 /srv/shop-api/.venv/bin/python worker.py
`

func TestProbeBareProcess(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/srv/shop-api", 0o755))
	fake := runnertest.NewFake().On("ps", runnertest.Output(psOutput))
	p := New(fake, WithFs(fsys))

	report := p.Probe(context.Background(), "/srv/shop-api/")
	assert.True(t, report.Healthy)
	assert.Equal(t, BareProcess, report.DeploymentType)
	assert.Len(t, report.Diagnostics, 2, "matching ignores case")
	assert.Equal(t, []string{"aux"}, fake.Calls()[0].Args)
}

func TestProbeBareProcessNotRunning(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/srv/billing", 0o755))
	p := New(runnertest.NewFake().On("ps", runnertest.Output(psOutput)), WithFs(fsys))

	report := p.Probe(context.Background(), "/srv/billing")
	assert.False(t, report.Healthy)
	assert.Empty(t, report.Diagnostics)
	assert.True(t, report.Outcome.Success)
}

func TestProbeLimitsDiagnostics(t *testing.T) {
	var b strings.Builder
	for i := range 25 {
		fmt.Fprintf(&b, "app %d 0.0 0.1 1 1 ? S 09:00 0:00 node /srv/web/server.js\n", 1000+i)
	}
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/srv/web", 0o755))
	p := New(runnertest.NewFake().On("ps", runnertest.Output(b.String())), WithFs(fsys))

	report := p.Probe(context.Background(), "/srv/web")
	assert.True(t, report.Healthy)
	assert.Len(t, report.Diagnostics, 10)
}

func TestProbeCompose(t *testing.T) {
	tests := []struct {
		name    string
		ps      outcome.StepOutcome
		healthy bool
	}{
		{
			name:    "compose plugin",
			ps:      runnertest.Output("NAME      IMAGE     COMMAND   SERVICE   CREATED   STATUS         PORTS\nweb-1     nginx     \"/docker\" web       1 min     Up 50 seconds  80/tcp\n"),
			healthy: true,
		},
		{
			name:    "legacy docker-compose",
			ps:      runnertest.Output("Name   Command   State   Ports\n-----------------------------\nweb_1  nginx     running\n"),
			healthy: true,
		},
		{
			name:    "exited",
			ps:      runnertest.Output("NAME   STATUS\nweb-1  Exited (1) 3 seconds ago\n"),
			healthy: false,
		},
		{
			name: "exited service with up in its command",
			ps: runnertest.Output(fmt.Sprintf("%-9s%-19s%-9s%s\n%s\n%-9s%-19s%-9s%s\n",
				"Name", "Command", "State", "Ports", strings.Repeat("-", 42), "web_1", "./run.sh warm-up", "Exit 1", "")),
			healthy: false,
		},
		{
			name: "running service next to an exited one",
			ps: runnertest.Output(fmt.Sprintf("%-12s%-16s%-10s%s\n%-12s%-16s%-10s%s\n%-12s%-16s%-10s%s\n",
				"NAME", "COMMAND", "STATUS", "PORTS", "startup-1", "\"run up\"", "Exited", "", "api-1", "\"serve\"", "Up 2 min", "80/tcp")),
			healthy: true,
		},
		{
			name:    "no header",
			ps:      runnertest.Output("web-1 Running\n"),
			healthy: true,
		},
		{
			name:    "no header and no running marker",
			ps:      runnertest.Output("web-1 up\n"),
			healthy: false,
		},
		{
			name:    "nothing started",
			ps:      runnertest.Output("NAME   IMAGE   COMMAND   SERVICE   CREATED   STATUS   PORTS\n"),
			healthy: false,
		},
		{
			name:    "compose missing",
			ps:      runnertest.Missing("docker"),
			healthy: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "/srv/web/docker-compose.yml", []byte("services: {}\n"), 0o644))
			fake := runnertest.NewFake().On("docker-compose", tt.ps).On("docker", tt.ps)
			report := New(fake, WithFs(fsys)).Probe(context.Background(), "/srv/web")
			assert.Equal(t, ComposeBased, report.DeploymentType)
			assert.Equal(t, tt.healthy, report.Healthy)
			assert.False(t, fake.Called("ps"))
		})
	}
}

func TestProbeMissingPath(t *testing.T) {
	fake := runnertest.NewFake()
	p := New(fake, WithFs(afero.NewMemMapFs()))

	report := p.Probe(context.Background(), "/srv/gone")
	assert.False(t, report.Healthy)
	assert.Equal(t, outcome.InvalidArgument, report.Outcome.ErrorKind)
	assert.Empty(t, fake.Calls())

	report = p.Probe(context.Background(), "")
	assert.Equal(t, outcome.InvalidArgument, report.Outcome.ErrorKind)
}

func TestProbeIsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/srv/shop-api", 0o755))
	p := New(runnertest.NewFake().On("ps", runnertest.Output(psOutput)), WithFs(fsys))

	first := p.Probe(context.Background(), "/srv/shop-api")
	second := p.Probe(context.Background(), "/srv/shop-api")
	assert.Equal(t, first.Healthy, second.Healthy)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
}

func TestProbeBareProcessIgnoresCaller(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/srv/orders", 0o755))
	listing := fmt.Sprintf("USER PID %%CPU %%MEM VSZ RSS TTY STAT START TIME COMMAND\n"+
		"root %d 0.0 0.1 1 1 pts/0 Sl 10:00 0:00 deployctl probe /srv/orders\n", os.Getpid())
	p := New(runnertest.NewFake().On("ps", runnertest.Output(listing)), WithFs(fsys))

	report := p.Probe(context.Background(), "/srv/orders")
	assert.False(t, report.Healthy)
	assert.Empty(t, report.Diagnostics)
}
