package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/agent/pkg/saga"
	"github.com/relaydeck/deploykit/common/runner/runnertest"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/relaydeck/deploykit/ctl/pkg/util"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, fake *runnertest.Fake) {
	t.Helper()
	viper.Set(config.NumWorkersKey, 2)
	config.SetRunner(fake)
	t.Cleanup(func() {
		config.Cleanup()
		viper.Reset()
	})
}

func writeProject(t *testing.T, dir string, files ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("{}"), 0o644))
	}
}

func TestRunLocal(t *testing.T) {
	fake := runnertest.NewFake()
	setup(t, fake)
	tmp := t.TempDir()
	writeProject(t, filepath.Join(tmp, "src"), "package.json", "package-lock.json")

	src := manifest.FromLocal(manifest.LocalSource{Path: filepath.Join(tmp, "src")})
	result := Run(context.Background(), src, filepath.Join(tmp, "deployed"), Config{})
	require.True(t, result.OverallSuccess)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, saga.Skipped, result.Steps[2].Status)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"ci"}, calls[0].Args)
	assert.Equal(t, filepath.Join(tmp, "deployed"), calls[0].Dir)
}

func TestRunManifests(t *testing.T) {
	fake := runnertest.NewFake()
	setup(t, fake)
	tmp := t.TempDir()
	writeProject(t, filepath.Join(tmp, "src", "web"), "requirements.txt")
	writeProject(t, filepath.Join(tmp, "src", "api"), "package.json")

	manifests := filepath.Join(tmp, "manifests")
	require.NoError(t, os.MkdirAll(manifests, 0o755))
	for _, name := range []string{"web", "api"} {
		m := manifest.Manifest{Deployments: []manifest.Deployment{{
			Name:   name,
			Target: filepath.Join(tmp, "srv", name),
			Source: manifest.FromLocal(manifest.LocalSource{Path: filepath.Join(tmp, "src", name)}),
		}}}
		require.NoError(t, manifest.ToDisk(m, filepath.Join(manifests, name+".yaml")))
	}
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "broken.yaml"), []byte("deployments: [\n"), 0o644))

	method, err := util.DeterminePathInputMethod([]string{manifests}, true, "")
	require.NoError(t, err)
	metricsFile := filepath.Join(tmp, "deploykit.prom")
	results, wait := RunManifests(context.Background(), method, BatchConfig{MetricsFile: metricsFile})

	var all []DeploymentResult
	for r := range results {
		all = append(all, r...)
	}
	require.NoError(t, wait())
	require.Len(t, all, 3)
	sort.Slice(all, func(i, j int) bool { return all[i].Manifest < all[j].Manifest })

	assert.Equal(t, "api", all[0].Deployment)
	assert.True(t, all[0].Result.OverallSuccess)
	assert.ErrorIs(t, all[1].Err, manifest.ErrLoadingManifest)
	assert.Equal(t, "web", all[2].Deployment)
	assert.True(t, all[2].Result.OverallSuccess)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), fmt.Sprintf(`deploykit_saga_runs_total{result=%q} 2`, "success"))
}
