package deploy

import (
	"context"

	"github.com/relaydeck/deploykit/common/compose"
	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/spf13/afero"
)

// Servicer starts a deployed project.
type Servicer interface {
	// CanStart returns the service definition used to start the project, if there is one.
	CanStart(projectPath string) (string, bool)
	StartService(ctx context.Context, projectPath string) outcome.StepOutcome
}

// ComposeService starts projects that ship a compose file.
type ComposeService struct {
	compose *compose.Client
	fs      afero.Fs
}

func NewComposeService(c *compose.Client, fsys afero.Fs) *ComposeService {
	return &ComposeService{
		compose: c,
		fs:      fsys,
	}
}

func (s *ComposeService) CanStart(projectPath string) (string, bool) {
	return compose.DetectFile(s.fs, projectPath)
}

func (s *ComposeService) StartService(ctx context.Context, projectPath string) outcome.StepOutcome {
	return s.compose.Up(ctx, projectPath, compose.UpOptions{Detach: true})
}
