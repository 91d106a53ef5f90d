// Package deploy implements the individual steps of a deployment: acquiring a project, installing
// its dependencies and starting it. Every step shells out through a runner.Runner and reports an
// outcome.StepOutcome instead of returning errors.
package deploy

import (
	"github.com/relaydeck/deploykit/common/compose"
	"github.com/relaydeck/deploykit/common/container"
	"github.com/relaydeck/deploykit/common/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Deployer is responsible for carrying out the steps needed to deploy a project.
type Deployer interface {
	Sourcerer
	Installer
	Servicer
}

type strategyCfg struct {
	fs  afero.Fs
	log *zap.Logger
}

type Opt func(*strategyCfg)

func WithFs(fsys afero.Fs) Opt {
	return func(cfg *strategyCfg) {
		cfg.fs = fsys
	}
}

func WithLogger(log *zap.Logger) Opt {
	return func(cfg *strategyCfg) {
		cfg.log = log
	}
}

// NewDefaultStrategy returns a Deployer that acquires projects with git, docker, pip/npm or a local
// copy, installs dependencies with uv/pip or npm and starts projects with docker-compose.
func NewDefaultStrategy(r runner.Runner, opts ...Opt) Deployer {
	cfg := &strategyCfg{
		fs:  afero.NewOsFs(),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &defaultStrategy{
		Acquirer:            NewAcquirer(r, container.New(r), cfg.fs, cfg.log),
		DependencyInstaller: NewDependencyInstaller(r, cfg.fs, cfg.log),
		ComposeService:      NewComposeService(compose.New(r, compose.WithFs(cfg.fs), compose.WithLogger(cfg.log)), cfg.fs),
	}
}

type defaultStrategy struct {
	*Acquirer            // implements Sourcerer
	*DependencyInstaller // implements Installer
	*ComposeService      // implements Servicer
}
