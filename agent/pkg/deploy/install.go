package deploy

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"time"

	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const DefaultInstallTimeout = 600 * time.Second

// Installer installs the dependencies declared by a project tree.
type Installer interface {
	InstallDependencies(ctx context.Context, projectPath string, opts manifest.InstallOptions) outcome.StepOutcome
}

// installPlan is the command used for a detected dependency manifest. The fallback is only used if
// the primary tool is not installed, never because it failed.
type installPlan struct {
	descriptor string
	primary    runner.Command
	fallback   *runner.Command
}

type detector struct {
	project    manifest.ProjectType
	descriptor string
	plan       func(fsys afero.Fs, projectPath string) installPlan
}

// detectors are tried in order. The first descriptor found in the project decides the plan.
var detectors = []detector{
	{
		project:    manifest.PythonProject,
		descriptor: "pyproject.toml",
		plan: func(fsys afero.Fs, projectPath string) installPlan {
			fallback := runner.New("pip", "install", "-e", ".")
			return installPlan{
				descriptor: "pyproject.toml",
				primary:    runner.New("uv", "sync"),
				fallback:   &fallback,
			}
		},
	},
	{
		project:    manifest.PythonProject,
		descriptor: "requirements.txt",
		plan: func(fsys afero.Fs, projectPath string) installPlan {
			return installPlan{
				descriptor: "requirements.txt",
				primary:    runner.New("pip", "install", "-r", "requirements.txt"),
			}
		},
	},
	{
		project:    manifest.NodeProject,
		descriptor: "package.json",
		plan: func(fsys afero.Fs, projectPath string) installPlan {
			cmd := runner.New("npm", "install")
			for _, lock := range []string{"package-lock.json", "npm-shrinkwrap.json"} {
				if ok, _ := afero.Exists(fsys, filepath.Join(projectPath, lock)); ok {
					cmd = runner.New("npm", "ci")
					break
				}
			}
			return installPlan{
				descriptor: "package.json",
				primary:    cmd,
			}
		},
	},
}

type DependencyInstaller struct {
	runner runner.Runner
	fs     afero.Fs
	log    *zap.Logger
}

func NewDependencyInstaller(r runner.Runner, fsys afero.Fs, log *zap.Logger) *DependencyInstaller {
	return &DependencyInstaller{
		runner: r,
		fs:     fsys,
		log:    log.With(zap.String("component", path.Base(reflect.TypeOf(DependencyInstaller{}).PkgPath()))),
	}
}

func (i *DependencyInstaller) detect(projectPath string, project manifest.ProjectType) (installPlan, bool) {
	for _, d := range detectors {
		if project != manifest.AutoProject && project != d.project {
			continue
		}
		info, err := i.fs.Stat(filepath.Join(projectPath, d.descriptor))
		if err == nil && !info.IsDir() {
			return d.plan(i.fs, projectPath), true
		}
	}
	return installPlan{}, false
}

func (i *DependencyInstaller) InstallDependencies(ctx context.Context, projectPath string, opts manifest.InstallOptions) outcome.StepOutcome {
	info, err := i.fs.Stat(projectPath)
	if err != nil || !info.IsDir() {
		return outcome.Failedf(outcome.InvalidArgument, "project path %s is not a directory", projectPath)
	}
	plan, ok := i.detect(projectPath, opts.Project)
	if !ok {
		if opts.Project != manifest.AutoProject {
			return outcome.Failedf(outcome.InvalidArgument, "no recognized %s project descriptor in %s", opts.Project, projectPath)
		}
		return outcome.Failedf(outcome.InvalidArgument, "no recognized project descriptor in %s", projectPath)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultInstallTimeout
	}
	cmd := plan.primary.WithDir(projectPath).WithTimeout(timeout)
	log := i.log.With(zap.String("project", projectPath), zap.String("descriptor", plan.descriptor))
	log.Debug("installing dependencies", zap.Stringer("command", cmd))

	result := i.runner.Run(ctx, cmd)
	if result.ErrorKind == outcome.NotFound && plan.fallback != nil {
		fallback := plan.fallback.WithDir(projectPath).WithTimeout(timeout)
		log.Info("primary installer not found, using fallback", zap.String("primary", cmd.Program), zap.Stringer("fallback", fallback))
		cmd = fallback
		result = i.runner.Run(ctx, cmd)
	}
	if !result.Success {
		return result.WithMessage(fmt.Sprintf("%s failed: %s", cmd, result.Message))
	}
	return result.WithMessage(fmt.Sprintf("dependencies from %s installed with %s", plan.descriptor, cmd.Program))
}
