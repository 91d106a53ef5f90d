// Package probe reports if a deployed project is running. Projects with a compose file are checked
// with compose ps, anything else by looking for processes named after the target directory.
package probe

import (
	"context"
	"path"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/relaydeck/deploykit/common/compose"
	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/process"
	"github.com/relaydeck/deploykit/common/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type DeploymentType int

const (
	BareProcess DeploymentType = iota
	ComposeBased
)

func (t DeploymentType) String() string {
	switch t {
	case ComposeBased:
		return "compose"
	default:
		return "process"
	}
}

func (t DeploymentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

var (
	// stateHeader finds the state column in the header of compose ps. docker-compose calls it
	// "State", the compose plugin "STATUS".
	stateHeader = regexp.MustCompile(`(?i)\b(state|status)\b`)
	// runningState matches a state cell. docker-compose prints "Up" or "running", the compose plugin
	// "running" or "Up 5 minutes".
	runningState = regexp.MustCompile(`(?i)\b(running|up)\b`)
	// runningMarker is used when the output has no recognizable header.
	runningMarker = regexp.MustCompile(`(?i)running`)
)

type Report struct {
	Healthy        bool           `json:"healthy"`
	DeploymentType DeploymentType `json:"deployment_type"`
	// Diagnostics are the compose ps lines or the matching process lines.
	Diagnostics []string            `json:"diagnostics"`
	Outcome     outcome.StepOutcome `json:"outcome"`
}

type Prober struct {
	compose *compose.Client
	monitor *process.Monitor
	fs      afero.Fs
	log     *zap.Logger
}

type Opt func(*Prober)

func WithFs(fsys afero.Fs) Opt {
	return func(p *Prober) {
		p.fs = fsys
	}
}

func WithLogger(log *zap.Logger) Opt {
	return func(p *Prober) {
		p.log = log.With(zap.String("component", path.Base(reflect.TypeOf(Prober{}).PkgPath())))
	}
}

func New(r runner.Runner, opts ...Opt) *Prober {
	p := &Prober{
		fs:  afero.NewOsFs(),
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.compose = compose.New(r, compose.WithFs(p.fs), compose.WithLogger(p.log))
	p.monitor = process.New(r)
	return p
}

// Probe inspects the deployment at targetPath. It only reads state and can be repeated freely.
func (p *Prober) Probe(ctx context.Context, targetPath string) Report {
	if targetPath == "" {
		return Report{Outcome: outcome.Failed(outcome.InvalidArgument, "no target path specified"), Diagnostics: []string{}}
	}
	if exists, err := afero.DirExists(p.fs, targetPath); err != nil || !exists {
		return Report{
			Outcome:     outcome.Failedf(outcome.InvalidArgument, "deployment path %s does not exist", targetPath),
			Diagnostics: []string{},
		}
	}
	if p.compose.HasFile(targetPath) {
		return p.probeCompose(ctx, targetPath)
	}
	return p.probeProcess(ctx, targetPath)
}

func (p *Prober) probeCompose(ctx context.Context, targetPath string) Report {
	report := Report{DeploymentType: ComposeBased, Diagnostics: []string{}}
	report.Outcome = p.compose.Ps(ctx, targetPath)
	for line := range strings.Lines(report.Outcome.Stdout) {
		if line = strings.TrimSpace(line); line != "" {
			report.Diagnostics = append(report.Diagnostics, line)
		}
	}
	report.Healthy = report.Outcome.Success && composeRunning(report.Diagnostics)
	p.log.Debug("probed compose deployment", zap.String("target", targetPath), zap.Bool("healthy", report.Healthy))
	return report
}

func (p *Prober) probeProcess(ctx context.Context, targetPath string) Report {
	name := filepath.Base(filepath.Clean(targetPath))
	status := p.monitor.ServiceStatus(ctx, name)
	report := Report{
		DeploymentType: BareProcess,
		Healthy:        status.Running,
		Diagnostics:    status.Matches,
		Outcome:        status.Outcome,
	}
	if report.Diagnostics == nil {
		report.Diagnostics = []string{}
	}
	p.log.Debug("probed process deployment", zap.String("target", targetPath), zap.String("process", name), zap.Bool("healthy", report.Healthy))
	return report
}

// composeRunning reports if any service of a compose ps table is running. Only the state column is
// checked so a service name or command containing "up" or "running" doesn't count.
func composeRunning(lines []string) bool {
	for i, header := range lines {
		loc := stateHeader.FindStringIndex(header)
		if loc == nil {
			continue
		}
		start, end := loc[0], -1
		if next := strings.IndexFunc(header[loc[1]:], func(r rune) bool { return r != ' ' && r != '\t' }); next >= 0 {
			end = loc[1] + next
		}
		for _, row := range lines[i+1:] {
			if strings.Trim(row, "-") == "" || len(row) <= start {
				continue
			}
			cell := row[start:]
			if end >= 0 && end < len(row) {
				cell = row[start:end]
			}
			if runningState.MatchString(cell) {
				return true
			}
		}
		return false
	}
	return slices.ContainsFunc(lines, runningMarker.MatchString)
}
