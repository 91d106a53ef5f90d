package deploy

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/dsnet/golib/unitconv"
	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/common/container"
	"github.com/relaydeck/deploykit/common/filesystem"
	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	CloneTimeout   = 300 * time.Second
	VenvTimeout    = 60 * time.Second
	PackageTimeout = 300 * time.Second
)

// Sourcerer materializes a project at a target path. The target must not exist yet.
type Sourcerer interface {
	Acquire(ctx context.Context, src manifest.Source, targetPath string) outcome.StepOutcome
}

// Acquirer implements Sourcerer for every manifest.SourceType.
type Acquirer struct {
	runner     runner.Runner
	containers *container.Client
	fs         afero.Fs
	log        *zap.Logger
	now        func() time.Time
}

func NewAcquirer(r runner.Runner, containers *container.Client, fsys afero.Fs, log *zap.Logger) *Acquirer {
	return &Acquirer{
		runner:     r,
		containers: containers,
		fs:         fsys,
		log:        log.With(zap.String("component", path.Base(reflect.TypeOf(Acquirer{}).PkgPath()))),
		now:        time.Now,
	}
}

func (a *Acquirer) Acquire(ctx context.Context, src manifest.Source, targetPath string) outcome.StepOutcome {
	if targetPath == "" {
		return outcome.Failed(outcome.InvalidArgument, "no target path specified")
	}
	if err := src.Validate(); err != nil {
		return outcome.FromError(outcome.InvalidArgument, err)
	}
	if result, ok := a.requireAbsentTarget(targetPath); !ok {
		return result
	}
	a.log.Debug("acquiring project", zap.Stringer("source", src), zap.String("target", targetPath))

	switch src.Type {
	case manifest.GitSourceType:
		return a.acquireGit(ctx, *src.Git, targetPath)
	case manifest.ImageSourceType:
		return a.acquireImage(ctx, src, targetPath)
	case manifest.PackageSourceType:
		return a.acquirePackage(ctx, src, targetPath)
	case manifest.LocalSourceType:
		return a.acquireLocal(ctx, *src.Local, targetPath)
	default:
		return outcome.Failedf(outcome.InvalidArgument, "unsupported source type %s", src.Type)
	}
}

func (a *Acquirer) requireAbsentTarget(targetPath string) (outcome.StepOutcome, bool) {
	exists, err := afero.Exists(a.fs, targetPath)
	if err != nil {
		return outcome.FromError(outcome.Unexpected, fmt.Errorf("unable to check target path %s: %w", targetPath, err)), false
	}
	if exists {
		return outcome.Failedf(outcome.InvalidArgument, "target path %s already exists", targetPath), false
	}
	return outcome.StepOutcome{}, true
}

func (a *Acquirer) acquireGit(ctx context.Context, src manifest.GitSource, targetPath string) outcome.StepOutcome {
	args := []string{"clone"}
	if src.Branch != "" {
		args = append(args, "-b", src.Branch)
	}
	if src.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(src.Depth))
	}
	args = append(args, src.URL, targetPath)

	result := a.runner.Run(ctx, runner.New("git", args...).WithTimeout(CloneTimeout))
	if !result.Success {
		return result.WithMessage(fmt.Sprintf("git clone of %s failed: %s", src.URL, result.Message))
	}
	return result.WithMessage(fmt.Sprintf("cloned %s to %s", src.URL, targetPath))
}

func (a *Acquirer) acquireImage(ctx context.Context, src manifest.Source, targetPath string) outcome.StepOutcome {
	img := src.Image
	if result := a.containers.Pull(ctx, img.Image); !result.Success {
		return result
	}

	spec := container.RunSpec{
		Image: img.Image,
		Name:  img.ContainerName,
		Port:  img.Port,
	}
	for _, kv := range img.Env {
		spec.Env = append(spec.Env, kv.Key+"="+kv.Value)
	}
	for _, kv := range img.Volumes {
		spec.Volumes = append(spec.Volumes, kv.Key+":"+kv.Value)
	}
	result := a.containers.Run(ctx, spec)
	if !result.Success {
		return result
	}

	record := manifest.Record{
		Source:      src,
		ContainerID: container.ContainerID(result),
		Created:     a.now(),
	}
	if err := manifest.WriteRecord(a.fs, targetPath, record); err != nil {
		failed := outcome.FromError(outcome.Unexpected, fmt.Errorf("container %s is running but the deployment record could not be written: %w", img.ContainerName, err))
		failed.Stdout = result.Stdout
		return failed
	}
	return result
}

func (a *Acquirer) acquirePackage(ctx context.Context, src manifest.Source, targetPath string) outcome.StepOutcome {
	pkg := src.Package
	var result outcome.StepOutcome
	var environment string

	switch pkg.Ecosystem {
	case manifest.PyPI:
		pip := "pip"
		if pkg.InstallTarget != "" {
			environment = filepath.Join(pkg.InstallTarget, ".venv")
			venv := a.runner.Run(ctx, runner.New("python3", "-m", "venv", environment).WithTimeout(VenvTimeout))
			if !venv.Success {
				return venv.WithMessage(fmt.Sprintf("unable to create virtual environment %s: %s", environment, venv.Message))
			}
			pip = filepath.Join(environment, "bin", "pip")
		}
		result = a.runner.Run(ctx, runner.New(pip, "install", pkg.Package).WithTimeout(PackageTimeout))
	case manifest.NPM:
		cmd := runner.New("npm", "install", "-g", pkg.Package)
		if pkg.Local {
			if err := a.fs.MkdirAll(pkg.InstallTarget, 0o755); err != nil {
				return outcome.FromError(outcome.Unexpected, fmt.Errorf("unable to create install target %s: %w", pkg.InstallTarget, err))
			}
			environment = pkg.InstallTarget
			cmd = runner.New("npm", "install", pkg.Package).WithDir(pkg.InstallTarget)
		}
		result = a.runner.Run(ctx, cmd.WithTimeout(PackageTimeout))
	default:
		return outcome.Failedf(outcome.InvalidArgument, "unsupported package ecosystem %s", pkg.Ecosystem)
	}

	if !result.Success {
		return result.WithMessage(fmt.Sprintf("installing %s package %s failed: %s", pkg.Ecosystem, pkg.Package, result.Message))
	}
	record := manifest.Record{
		Source:      src,
		Environment: environment,
		Created:     a.now(),
	}
	if err := manifest.WriteRecord(a.fs, targetPath, record); err != nil {
		return outcome.FromError(outcome.Unexpected, fmt.Errorf("package %s was installed but the deployment record could not be written: %w", pkg.Package, err))
	}
	return result.WithMessage(fmt.Sprintf("installed %s package %s", pkg.Ecosystem, pkg.Package))
}

func (a *Acquirer) acquireLocal(ctx context.Context, src manifest.LocalSource, targetPath string) outcome.StepOutcome {
	source, err := filesystem.ResolvePath(a.fs, src.Path)
	if err != nil {
		return outcome.FromError(outcome.InvalidArgument, fmt.Errorf("unable to resolve %s: %w", src.Path, err))
	}
	if exists, err := afero.Exists(a.fs, source); err != nil || !exists {
		return outcome.Failedf(outcome.InvalidArgument, "source path %s does not exist", source)
	}
	if err := a.fs.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return outcome.FromError(outcome.Unexpected, fmt.Errorf("unable to create parent of %s: %w", targetPath, err))
	}

	if src.LinkMode == manifest.SymLink {
		if err := filesystem.Symlink(a.fs, source, targetPath); err != nil {
			return outcome.FromError(outcome.Unexpected, fmt.Errorf("unable to link %s to %s: %w", targetPath, source, err))
		}
		return outcome.Succeeded(fmt.Sprintf("linked %s to %s", targetPath, source))
	}

	opts := filesystem.CopyOptions{Exclude: src.Exclude}
	if src.Filter != "" {
		if opts.Filter, err = filesystem.CompileFilter(src.Filter); err != nil {
			return outcome.FromError(outcome.InvalidArgument, err)
		}
	}
	stats, err := filesystem.CopyTree(ctx, a.fs, source, targetPath, opts)
	if err != nil {
		kind := outcome.Unexpected
		switch {
		case errors.Is(err, filesystem.ErrSourceNotFound), errors.Is(err, filesystem.ErrTargetExists),
			errors.Is(err, filesystem.ErrInvalidPattern), errors.Is(err, filesystem.ErrInvalidFilter):
			kind = outcome.InvalidArgument
		}
		return outcome.FromError(kind, fmt.Errorf("unable to copy %s to %s: %w", source, targetPath, err))
	}
	return outcome.Succeeded(fmt.Sprintf("copied %d files (%sB) from %s to %s", stats.Files,
		unitconv.FormatPrefix(float64(stats.Bytes), unitconv.IEC, 1), source, targetPath))
}
