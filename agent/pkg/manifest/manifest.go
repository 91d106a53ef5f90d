// Package manifest defines the Go-native descriptors for a deployment: where a project comes from,
// where it should be placed and how its dependencies are installed. Descriptors are plain values
// that can be built in code or loaded from a YAML manifest.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is a collection of deployments that can be applied as a batch.
type Manifest struct {
	Metadata    Metadata     `yaml:"metadata,omitempty"`
	Deployments []Deployment `yaml:"deployments" validate:"required,min=1,dive"`
}

type Metadata struct {
	Name    string    `yaml:"name,omitempty"`
	Updated time.Time `yaml:"updated,omitempty"`
}

// Deployment is one acquire, install, start run.
type Deployment struct {
	Name    string         `yaml:"name,omitempty"`
	Target  string         `yaml:"target" validate:"required"`
	Start   bool           `yaml:"start,omitempty"`
	Install InstallOptions `yaml:"install,omitempty"`
	Source  Source         `yaml:"source"`
}

func (d Deployment) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return filepath.Base(d.Target)
}

type ProjectType int

const (
	AutoProject ProjectType = iota
	PythonProject
	NodeProject
)

func (p ProjectType) String() string {
	switch p {
	case PythonProject:
		return "python"
	case NodeProject:
		return "node"
	default:
		return "auto"
	}
}

func ProjectTypeFromString(s string) (ProjectType, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return AutoProject, nil
	case "python":
		return PythonProject, nil
	case "node":
		return NodeProject, nil
	default:
		return AutoProject, fmt.Errorf("invalid project type: %s", s)
	}
}

func (p *ProjectType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	t, err := ProjectTypeFromString(s)
	if err != nil {
		return err
	}
	*p = t
	return nil
}

func (p ProjectType) MarshalYAML() (any, error) {
	return p.String(), nil
}

// InstallOptions controls the dependency installation step.
type InstallOptions struct {
	// Project restricts dependency manifest detection to one project type.
	Project ProjectType `yaml:"project,omitempty"`
	// Timeout for the install command. A default is used when zero.
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
}

// Validate checks the manifest and every deployment in it. Targets must be unique so deployments
// can safely run in parallel.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %w", ErrBadManifest, err)
	}
	seen := make(map[string]int, len(m.Deployments))
	var errs []error
	for i, d := range m.Deployments {
		if err := d.Source.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("deployment %d (%s): %w", i, d.DisplayName(), err))
		}
		target := filepath.Clean(d.Target)
		if j, ok := seen[target]; ok {
			errs = append(errs, fmt.Errorf("deployments %d and %d: %w: %s", j, i, ErrDuplicateTarget, target))
		}
		seen[target] = i
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrBadManifest, errors.Join(errs...))
	}
	return nil
}

func FromDisk(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrLoadingManifest, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrLoadingManifest, err)
	}
	return m, nil
}

func ToDisk(m Manifest, path string) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
