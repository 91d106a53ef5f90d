package manifest

import (
	"fmt"
	"strings"
)

type SourceType int

const (
	UnknownSource SourceType = iota
	GitSourceType
	ImageSourceType
	PackageSourceType
	LocalSourceType
)

func (t SourceType) String() string {
	switch t {
	case GitSourceType:
		return "git"
	case ImageSourceType:
		return "image"
	case PackageSourceType:
		return "package"
	case LocalSourceType:
		return "local"
	default:
		return "unknown"
	}
}

func SourceTypeFromString(s string) SourceType {
	switch strings.ToLower(s) {
	case "git":
		return GitSourceType
	case "image", "docker":
		return ImageSourceType
	case "package":
		return PackageSourceType
	case "local":
		return LocalSourceType
	default:
		return UnknownSource
	}
}

func (t *SourceType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if *t = SourceTypeFromString(s); *t == UnknownSource {
		return fmt.Errorf("invalid source type: %s", s)
	}
	return nil
}

func (t SourceType) MarshalYAML() (any, error) {
	if t == UnknownSource {
		return nil, fmt.Errorf("unknown source type: %d", t)
	}
	return t.String(), nil
}

// Source describes where a project comes from. Exactly one variant matching Type must be set.
type Source struct {
	Type    SourceType     `yaml:"type"`
	Git     *GitSource     `yaml:"git,omitempty"`
	Image   *ImageSource   `yaml:"image,omitempty"`
	Package *PackageSource `yaml:"package,omitempty"`
	Local   *LocalSource   `yaml:"local,omitempty"`
}

func FromGit(g GitSource) Source {
	return Source{Type: GitSourceType, Git: &g}
}

func FromImage(i ImageSource) Source {
	return Source{Type: ImageSourceType, Image: &i}
}

func FromPackage(p PackageSource) Source {
	return Source{Type: PackageSourceType, Package: &p}
}

func FromLocal(l LocalSource) Source {
	return Source{Type: LocalSourceType, Local: &l}
}

// String returns a short human readable description like "git https://host/repo.git@main".
func (s Source) String() string {
	switch {
	case s.Type == GitSourceType && s.Git != nil:
		if s.Git.Branch != "" {
			return fmt.Sprintf("git %s@%s", s.Git.URL, s.Git.Branch)
		}
		return fmt.Sprintf("git %s", s.Git.URL)
	case s.Type == ImageSourceType && s.Image != nil:
		return fmt.Sprintf("image %s as %s", s.Image.Image, s.Image.ContainerName)
	case s.Type == PackageSourceType && s.Package != nil:
		return fmt.Sprintf("%s package %s", s.Package.Ecosystem, s.Package.Package)
	case s.Type == LocalSourceType && s.Local != nil:
		return fmt.Sprintf("local %s (%s)", s.Local.Path, s.Local.LinkMode)
	default:
		return s.Type.String()
	}
}

// MaterializesTree reports if acquiring the source produces a project tree at the target path.
// Images and packages are installed elsewhere and their dependencies are resolved when acquired.
func (s Source) MaterializesTree() bool {
	return s.Type == GitSourceType || s.Type == LocalSourceType
}

type GitSource struct {
	URL    string `yaml:"url" validate:"required"`
	Branch string `yaml:"branch,omitempty"`
	// Depth creates a shallow clone when greater than zero.
	Depth int `yaml:"depth,omitempty" validate:"gte=0"`
}

type ImageSource struct {
	Image         string `yaml:"image" validate:"required"`
	ContainerName string `yaml:"container-name" validate:"required"`
	// Port is published on the same host port when set.
	Port    int        `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	Env     OrderedMap `yaml:"env,omitempty" validate:"dive"`
	Volumes OrderedMap `yaml:"volumes,omitempty" validate:"dive"`
}

type Ecosystem int

const (
	UnknownEcosystem Ecosystem = iota
	PyPI
	NPM
)

func (e Ecosystem) String() string {
	switch e {
	case PyPI:
		return "pypi"
	case NPM:
		return "npm"
	default:
		return "unknown"
	}
}

func EcosystemFromString(s string) Ecosystem {
	switch strings.ToLower(s) {
	case "pypi", "pip", "python":
		return PyPI
	case "npm", "node":
		return NPM
	default:
		return UnknownEcosystem
	}
}

func (e *Ecosystem) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if *e = EcosystemFromString(s); *e == UnknownEcosystem {
		return fmt.Errorf("invalid package ecosystem: %s", s)
	}
	return nil
}

func (e Ecosystem) MarshalYAML() (any, error) {
	return e.String(), nil
}

type PackageSource struct {
	Ecosystem Ecosystem `yaml:"ecosystem" validate:"required"`
	Package   string    `yaml:"package" validate:"required"`
	// InstallTarget is where an isolated environment is created (pypi) or where a local install
	// is done (npm). Packages are installed system wide when empty.
	InstallTarget string `yaml:"install-target,omitempty"`
	// Local installs npm packages into InstallTarget instead of globally.
	Local bool `yaml:"local,omitempty"`
}

type LinkMode int

const (
	CopyLink LinkMode = iota
	SymLink
)

func (m LinkMode) String() string {
	switch m {
	case SymLink:
		return "symlink"
	default:
		return "copy"
	}
}

func (m *LinkMode) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "copy", "":
		*m = CopyLink
	case "symlink", "link":
		*m = SymLink
	default:
		return fmt.Errorf("invalid link mode: %s", s)
	}
	return nil
}

func (m LinkMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

type LocalSource struct {
	Path     string   `yaml:"path" validate:"required"`
	LinkMode LinkMode `yaml:"link-mode,omitempty"`
	// Exclude and Filter only apply when copying.
	Exclude []string `yaml:"exclude,omitempty" validate:"dive,globpattern"`
	Filter  string   `yaml:"filter,omitempty"`
}
