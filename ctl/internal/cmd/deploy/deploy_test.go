package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/agent/pkg/saga"
	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner/runnertest"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePairs(t *testing.T) {
	m, err := parsePairs([]string{"B=2", "A=1", "URL=http://x?a=b"}, "=")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "URL"}, m.Keys())
	v, _ := m.Get("URL")
	assert.Equal(t, "http://x?a=b", v)

	_, err = parsePairs([]string{"=value"}, "=")
	assert.Error(t, err)
	_, err = parsePairs([]string{"/data"}, ":")
	assert.Error(t, err)
}

func TestDeploymentError(t *testing.T) {
	failed := outcome.Failed(outcome.NotFound, "git not found")
	result := saga.Result{Steps: []saga.Step{{Name: saga.Acquire, Status: saga.Failed, Outcome: &failed}}}
	err := deploymentError(result)
	assert.ErrorContains(t, err, "step acquire")
	assert.ErrorContains(t, err, "git not found")
}

func TestLocalCmd(t *testing.T) {
	fake := runnertest.NewFake()
	config.SetRunner(fake)
	t.Cleanup(func() {
		config.Cleanup()
		viper.Reset()
	})
	viper.Set(config.OutputKey, "json")

	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "requirements.txt"), []byte("requests\n"), 0o644))

	cmd := NewCmd()
	cmd.SetArgs([]string{"local", src, filepath.Join(tmp, "dst"), "--project", "python"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, []string{"pip"}, fake.Programs())
	assert.FileExists(t, filepath.Join(tmp, "dst", "requirements.txt"))

	cmd = NewCmd()
	cmd.SetArgs([]string{"local", src, filepath.Join(tmp, "dst")})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "step acquire")
}

func TestLocalCmdInvalidProject(t *testing.T) {
	t.Cleanup(viper.Reset)
	cmd := NewCmd()
	cmd.SetArgs([]string{"local", "/src", "/dst", "--project", "ruby"})
	assert.Error(t, cmd.Execute())
}

func TestPackageCmdUnknownEcosystem(t *testing.T) {
	cmd := NewCmd()
	cmd.SetArgs([]string{"package", "cargo", "ripgrep", "/dst"})
	assert.ErrorContains(t, cmd.Execute(), "unsupported package ecosystem")
}

func TestImageSourceValidation(t *testing.T) {
	src := manifest.FromImage(manifest.ImageSource{Image: "redis:7"})
	assert.Error(t, src.Validate())
}
