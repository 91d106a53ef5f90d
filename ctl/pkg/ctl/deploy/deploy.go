// Package deploy is the deployctl backend for running deployment sagas, either for a single source
// given on the command line or for every deployment in one or more manifest files.
package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	agentdeploy "github.com/relaydeck/deploykit/agent/pkg/deploy"
	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/agent/pkg/saga"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/relaydeck/deploykit/ctl/pkg/util"
	"go.uber.org/zap"
)

type Config struct {
	StartAfterInstall bool
	Install           manifest.InstallOptions
}

func newSaga(metrics *saga.Metrics) *saga.Saga {
	log, _ := config.GetLogger()
	deployer := agentdeploy.NewDefaultStrategy(config.Runner(), agentdeploy.WithLogger(log))
	opts := []saga.Opt{}
	if metrics != nil {
		opts = append(opts, saga.WithMetrics(metrics))
	}
	return saga.New(log, deployer, opts...)
}

// Run deploys a single source to targetPath.
func Run(ctx context.Context, src manifest.Source, targetPath string, cfg Config) saga.Result {
	return newSaga(nil).Run(ctx, saga.Request{
		Source:            src,
		TargetPath:        targetPath,
		StartAfterInstall: cfg.StartAfterInstall,
		Install:           cfg.Install,
	})
}

// DeploymentResult is the outcome of one deployment from a manifest. Err is set instead of Result
// if the manifest could not be loaded.
type DeploymentResult struct {
	Manifest   string
	Deployment string
	Result     saga.Result
	Err        error
}

type BatchConfig struct {
	// MetricsFile is written in the Prometheus text format once all manifests were processed.
	MetricsFile string
	// Filter is a file filter expression manifest files must match.
	Filter string
	// Sequential processes one manifest at a time in the order they were provided.
	Sequential bool
}

// RunManifests deploys every deployment in the manifests provided by method. Manifests are
// processed in parallel based on the global num-workers flag, deployments within a manifest are
// run in the order they are listed. A manifest that can't be loaded is reported as a result and
// does not stop other manifests.
func RunManifests(ctx context.Context, method util.PathInputMethod, cfg BatchConfig) (<-chan []DeploymentResult, func() error) {
	log, _ := config.GetLogger()
	reg := prometheus.NewRegistry()
	s := newSaga(saga.NewMetrics(reg))

	processManifest := func(ctx context.Context, path string) ([]DeploymentResult, error) {
		m, err := manifest.FromDisk(path)
		if err == nil {
			err = m.Validate()
		}
		if err != nil {
			log.Debug("skipping invalid manifest", zap.String("manifest", path), zap.Error(err))
			return []DeploymentResult{{Manifest: path, Err: err}}, nil
		}
		results := make([]DeploymentResult, 0, len(m.Deployments))
		for _, d := range m.Deployments {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results = append(results, DeploymentResult{
				Manifest:   path,
				Deployment: d.DisplayName(),
				Result: s.Run(ctx, saga.Request{
					Source:            d.Source,
					TargetPath:        d.Target,
					StartAfterInstall: d.Start,
					Install:           d.Install,
				}),
			})
		}
		return results, nil
	}

	opts := []util.ProcessPathOpt{}
	if cfg.Filter != "" {
		opts = append(opts, util.FilterExpr(cfg.Filter))
	}
	results, wait := util.ProcessPaths(ctx, method, cfg.Sequential, processManifest, opts...)

	return results, func() error {
		err := wait()
		if cfg.MetricsFile != "" {
			if mErr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); mErr != nil {
				err = errors.Join(err, fmt.Errorf("unable to write metrics to %s: %w", cfg.MetricsFile, mErr))
			}
		}
		return err
	}
}
