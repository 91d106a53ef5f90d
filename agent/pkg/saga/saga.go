// Package saga runs a deployment as an ordered list of steps: acquire, install_dependencies and an
// optional start. The first failing step ends the run. Completed steps are never rolled back, a
// failed install leaves the acquired project in place for inspection.
package saga

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/relaydeck/deploykit/agent/pkg/deploy"
	"github.com/relaydeck/deploykit/agent/pkg/manifest"
	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Request struct {
	Source     manifest.Source
	TargetPath string
	// StartAfterInstall starts the project with its compose file once dependencies are installed.
	StartAfterInstall bool
	Install           manifest.InstallOptions
}

// Result is the ordered log of a run. Steps after the first failure are absent.
type Result struct {
	RunID          string        `json:"run_id"`
	OverallSuccess bool          `json:"overall_success"`
	Steps          []Step        `json:"steps"`
	TargetPath     string        `json:"target_path"`
	Duration       time.Duration `json:"duration"`
}

// Failed returns the failed step if there is one.
func (r Result) Failed() (Step, bool) {
	for _, s := range r.Steps {
		if s.Status == Failed {
			return s, true
		}
	}
	return Step{}, false
}

type Saga struct {
	log      *zap.Logger
	deployer deploy.Deployer
	fs       afero.Fs
	metrics  *Metrics
	now      func() time.Time
}

type Opt func(*Saga)

func WithFs(fsys afero.Fs) Opt {
	return func(s *Saga) {
		s.fs = fsys
	}
}

func WithMetrics(m *Metrics) Opt {
	return func(s *Saga) {
		s.metrics = m
	}
}

func New(log *zap.Logger, deployer deploy.Deployer, opts ...Opt) *Saga {
	log = log.With(zap.String("component", path.Base(reflect.TypeOf(Saga{}).PkgPath())))
	s := &Saga{
		log:      log,
		deployer: deployer,
		fs:       afero.NewOsFs(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run tracks the steps of a single Run call. It is never shared between calls.
type run struct {
	log    *zap.Logger
	result Result
}

// Run executes the deployment described by req. It never panics and always returns the log of the
// steps that were executed.
func (s *Saga) Run(ctx context.Context, req Request) Result {
	started := s.now()
	r := &run{
		result: Result{
			RunID:      uuid.New().String(),
			TargetPath: req.TargetPath,
		},
	}
	r.log = s.log.With(zap.String("runID", r.result.RunID), zap.String("target", req.TargetPath))
	r.log.Info("starting deployment", zap.Stringer("source", req.Source))

	ok := s.execute(ctx, r, req)
	r.result.OverallSuccess = ok
	r.result.Duration = s.now().Sub(started)
	s.metrics.observeRun(r.result)

	if ok {
		r.log.Info("deployment completed", zap.Duration("duration", r.result.Duration))
	} else if failed, found := r.result.Failed(); found {
		r.log.Warn("deployment failed", zap.String("step", string(failed.Name)), zap.String("reason", failed.Outcome.Message),
			zap.Stringer("errorKind", failed.Outcome.ErrorKind))
	}
	return r.result
}

func (s *Saga) execute(ctx context.Context, r *run, req Request) bool {
	acquired := s.runStep(ctx, r, Acquire, func(ctx context.Context) outcome.StepOutcome {
		if req.TargetPath == "" {
			return outcome.Failed(outcome.InvalidArgument, "no target path specified")
		}
		exists, err := afero.Exists(s.fs, req.TargetPath)
		if err != nil {
			return outcome.FromError(outcome.Unexpected, fmt.Errorf("unable to check target path %s: %w", req.TargetPath, err))
		}
		if exists {
			return outcome.Failedf(outcome.InvalidArgument, "target path %s already exists", req.TargetPath)
		}
		return s.deployer.Acquire(ctx, req.Source, req.TargetPath)
	})
	if !acquired {
		return false
	}

	if req.Source.MaterializesTree() {
		installed := s.runStep(ctx, r, InstallDependencies, func(ctx context.Context) outcome.StepOutcome {
			return s.deployer.InstallDependencies(ctx, req.TargetPath, req.Install)
		})
		if !installed {
			return false
		}
	} else {
		s.skipStep(r, InstallDependencies, fmt.Sprintf("dependencies of %s sources are resolved during acquisition", req.Source.Type))
	}

	if !req.StartAfterInstall {
		s.skipStep(r, Start, "start not requested")
		return true
	}
	if _, ok := s.deployer.CanStart(req.TargetPath); !ok {
		s.skipStep(r, Start, "no compose file found, manual start required")
		return true
	}
	return s.runStep(ctx, r, Start, func(ctx context.Context) outcome.StepOutcome {
		return s.deployer.StartService(ctx, req.TargetPath)
	})
}

// runStep executes fn as the named step and appends it to the log. It returns true if the step
// succeeded. A panic in fn fails the step with an Unexpected outcome.
func (s *Saga) runStep(ctx context.Context, r *run, name StepName, fn func(context.Context) outcome.StepOutcome) bool {
	step := Step{Name: name, Status: Pending}
	s.transition(r, &step, Running)
	started := s.now()
	result := s.contain(r, name, func() outcome.StepOutcome { return fn(ctx) })
	step.Duration = s.now().Sub(started)
	step.Outcome = &result

	if result.Success {
		s.transition(r, &step, Success)
	} else {
		s.transition(r, &step, Failed)
	}
	r.result.Steps = append(r.result.Steps, step)
	s.metrics.observeStep(step)
	return step.Status == Success
}

func (s *Saga) skipStep(r *run, name StepName, reason string) {
	step := Step{Name: name, Status: Pending}
	result := outcome.Succeeded(reason)
	step.Outcome = &result
	s.transition(r, &step, Skipped)
	r.result.Steps = append(r.result.Steps, step)
	s.metrics.observeStep(step)
}

func (s *Saga) contain(r *run, name StepName, fn func() outcome.StepOutcome) (result outcome.StepOutcome) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("recovered from panic during step", zap.String("step", string(name)), zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			result = outcome.FromError(outcome.Unexpected, fmt.Errorf("%w: %v", ErrStepPanicked, p))
		}
	}()
	return fn()
}

// transition moves step to the provided status. Illegal transitions are logged and ignored.
func (s *Saga) transition(r *run, step *Step, to StepStatus) bool {
	if !step.Status.canTransition(to) {
		r.log.Error("rejected illegal step transition", zap.String("step", string(step.Name)),
			zap.Stringer("oldState", step.Status), zap.Stringer("newState", to))
		return false
	}
	fields := []zap.Field{zap.String("step", string(step.Name)), zap.Stringer("oldState", step.Status), zap.Stringer("newState", to)}
	if step.Outcome != nil && to.Terminal() {
		fields = append(fields, zap.String("message", step.Outcome.Message))
		if to == Failed {
			fields = append(fields, zap.Stringer("errorKind", step.Outcome.ErrorKind))
		}
	}
	r.log.Info("state update", fields...)
	step.Status = to
	return true
}
