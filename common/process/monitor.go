// Package process inspects running processes, listening ports and basic host resources using the
// standard unix tools (ps, lsof, free/vm_stat, df and uptime).
package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
)

const (
	// MaxMatches limits how many matching process lines are kept as diagnostics.
	MaxMatches  = 10
	PsTimeout   = 10 * time.Second
	LsofTimeout = 10 * time.Second
	InfoTimeout = 10 * time.Second
)

type Monitor struct {
	runner runner.Runner
	goos   string
	// ownPIDs are never reported by ServiceStatus. The caller's own command line usually contains
	// the name it looks for.
	ownPIDs []int
}

type Opt func(*Monitor)

// WithOS overrides the operating system used to pick platform specific tools.
func WithOS(goos string) Opt {
	return func(m *Monitor) {
		m.goos = goos
	}
}

// withOwnPIDs replaces the process IDs ignored by ServiceStatus.
func withOwnPIDs(pids ...int) Opt {
	return func(m *Monitor) {
		m.ownPIDs = pids
	}
}

func New(r runner.Runner, opts ...Opt) *Monitor {
	m := &Monitor{
		runner:  r,
		goos:    runtime.GOOS,
		ownPIDs: []int{os.Getpid(), os.Getppid()},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type ServiceStatus struct {
	Name    string
	Running bool
	// Matches are the first MaxMatches process lines containing Name.
	Matches []string
	Outcome outcome.StepOutcome
}

// ServiceStatus looks for processes whose ps line contains name ignoring case. The match is
// deliberately loose so a project directory name finds its interpreter or server processes. The
// calling process, its parent and the ps command itself are skipped.
func (m *Monitor) ServiceStatus(ctx context.Context, name string) ServiceStatus {
	status := ServiceStatus{Name: name}
	if name == "" {
		status.Outcome = outcome.Failed(outcome.InvalidArgument, "no service name specified")
		return status
	}
	status.Outcome = m.runner.Run(ctx, runner.New("ps", "aux").WithTimeout(PsTimeout))
	if !status.Outcome.Success {
		return status
	}
	status.Matches = MatchLines(m.withoutOwnProcesses(status.Outcome.Stdout), name, MaxMatches)
	status.Running = len(status.Matches) > 0
	return status
}

// withoutOwnProcesses drops ps aux lines whose PID column belongs to this process or its parent
// and the line of the ps invocation used for the listing.
func (m *Monitor) withoutOwnProcesses(output string) string {
	var b strings.Builder
	for line := range strings.Lines(output) {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if pid, err := strconv.Atoi(fields[1]); err == nil && slices.Contains(m.ownPIDs, pid) {
				continue
			}
			if len(fields) == 12 && filepath.Base(fields[10]) == "ps" && fields[11] == "aux" {
				continue
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

// MatchLines returns up to limit lines of output that contain needle ignoring case.
func MatchLines(output string, needle string, limit int) []string {
	needle = strings.ToLower(needle)
	matches := []string{}
	for line := range strings.Lines(output) {
		if len(matches) >= limit {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.Contains(strings.ToLower(line), needle) {
			matches = append(matches, line)
		}
	}
	return matches
}

type PortUsage struct {
	// Port is zero when all open network files were listed.
	Port int
	// InUse is only meaningful when Port is set.
	InUse   bool
	Listing string
	Outcome outcome.StepOutcome
}

// Ports lists the processes using a specific port or all network connections if port is zero.
func (m *Monitor) Ports(ctx context.Context, port int) PortUsage {
	usage := PortUsage{Port: port}
	if port < 0 || port > 65535 {
		usage.Outcome = outcome.Failedf(outcome.InvalidArgument, "invalid port %d", port)
		return usage
	}
	args := []string{"-i", "-P", "-n"}
	if port > 0 {
		args = []string{"-i", ":" + strconv.Itoa(port)}
	}
	result := m.runner.Run(ctx, runner.New("lsof", args...).WithTimeout(LsofTimeout))
	// lsof exits with 1 and prints nothing if no file matched.
	if port > 0 && result.ErrorKind == outcome.ProcessFailure && result.ExitCode == 1 && strings.TrimSpace(result.Stdout) == "" {
		usage.Outcome = outcome.Succeeded("port " + strconv.Itoa(port) + " is not in use")
		return usage
	}
	usage.Outcome = result
	usage.Listing = result.Stdout
	usage.InUse = port > 0 && result.Success && strings.TrimSpace(result.Stdout) != ""
	return usage
}

// SystemInfo holds the raw output of each probe. Sections are collected independently so one
// missing tool doesn't hide the others.
type SystemInfo struct {
	Memory outcome.StepOutcome
	Disk   outcome.StepOutcome
	Uptime outcome.StepOutcome
}

func (m *Monitor) SystemInfo(ctx context.Context) SystemInfo {
	memory := runner.New("free", "-h")
	if m.goos == "darwin" {
		memory = runner.New("vm_stat")
	}
	return SystemInfo{
		Memory: m.runner.Run(ctx, memory.WithTimeout(InfoTimeout)),
		Disk:   m.runner.Run(ctx, runner.New("df", "-h").WithTimeout(InfoTimeout)),
		Uptime: m.runner.Run(ctx, runner.New("uptime").WithTimeout(InfoTimeout)),
	}
}
