package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
metadata:
  name: lab
deployments:
  - name: api
    target: /srv/api
    start: true
    install:
      project: python
      timeout: 10m
    source:
      type: git
      git:
        url: https://example.com/api.git
        branch: main
        depth: 1
  - target: /srv/cache
    source:
      type: image
      image:
        image: redis:7
        container-name: cache
        port: 6379
        env:
          ZETA: last
          ALPHA: first
        volumes:
          /data/redis: /data
  - target: /srv/tool
    source:
      type: package
      package:
        ecosystem: pypi
        package: httpie
        install-target: /opt/httpie
  - target: /srv/site
    source:
      type: local
      local:
        path: ./site
        link-mode: symlink
        exclude: ["**/node_modules"]
`

func TestParseManifest(t *testing.T) {
	m, err := Parse([]byte(testManifest))
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	require.Len(t, m.Deployments, 4)

	api := m.Deployments[0]
	assert.Equal(t, "api", api.DisplayName())
	assert.True(t, api.Start)
	assert.Equal(t, PythonProject, api.Install.Project)
	assert.Equal(t, 10*time.Minute, api.Install.Timeout)
	assert.Equal(t, GitSourceType, api.Source.Type)
	assert.Equal(t, GitSource{URL: "https://example.com/api.git", Branch: "main", Depth: 1}, *api.Source.Git)
	assert.True(t, api.Source.MaterializesTree())

	cache := m.Deployments[1]
	assert.Equal(t, "cache", cache.DisplayName())
	assert.Equal(t, []string{"ZETA", "ALPHA"}, cache.Source.Image.Env.Keys(), "document order must be kept")
	host, ok := cache.Source.Image.Volumes.Get("/data/redis")
	assert.True(t, ok)
	assert.Equal(t, "/data", host)
	assert.False(t, cache.Source.MaterializesTree())

	assert.Equal(t, PyPI, m.Deployments[2].Source.Package.Ecosystem)
	assert.Equal(t, SymLink, m.Deployments[3].Source.Local.LinkMode)
}

func TestParseManifestInvalidEnums(t *testing.T) {
	for _, doc := range []string{
		"deployments: [{target: /a, source: {type: svn}}]",
		"deployments: [{target: /a, source: {type: package, package: {ecosystem: cargo, package: x}}}]",
		"deployments: [{target: /a, source: {type: local, local: {path: /b, link-mode: hardlink}}}]",
		"deployments: [{target: /a, install: {project: rust}, source: {type: git, git: {url: x}}}]",
		"deployments: [{target: /a, source: {type: image, image: {image: x, container-name: y, env: [A=1]}}}]",
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrLoadingManifest, doc)
	}
}

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		wantErr bool
	}{
		{"valid git", FromGit(GitSource{URL: "https://example.com/r.git"}), false},
		{"git without url", FromGit(GitSource{}), true},
		{"negative depth", FromGit(GitSource{URL: "x", Depth: -1}), true},
		{"image without container name", FromImage(ImageSource{Image: "nginx"}), true},
		{"image port out of range", FromImage(ImageSource{Image: "nginx", ContainerName: "web", Port: 70000}), true},
		{"image env without key", FromImage(ImageSource{Image: "nginx", ContainerName: "web", Env: OrderedMap{{Key: "", Value: "x"}}}), true},
		{"package without ecosystem", FromPackage(PackageSource{Package: "httpie"}), true},
		{"local npm without target", FromPackage(PackageSource{Ecosystem: NPM, Package: "serve", Local: true}), true},
		{"valid npm", FromPackage(PackageSource{Ecosystem: NPM, Package: "serve"}), false},
		{"local bad pattern", FromLocal(LocalSource{Path: "/src", Exclude: []string{"[oops"}}), true},
		{"local bad filter", FromLocal(LocalSource{Path: "/src", Filter: "size >"}), true},
		{"valid local", FromLocal(LocalSource{Path: "/src", Exclude: []string{"**/.git"}, Filter: "size < 1MiB"}), false},
		{"type mismatch", Source{Type: GitSourceType, Local: &LocalSource{Path: "/src"}}, true},
		{"two variants", Source{Type: GitSourceType, Git: &GitSource{URL: "x"}, Local: &LocalSource{Path: "/src"}}, true},
		{"empty", Source{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSource)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManifestValidateDuplicateTargets(t *testing.T) {
	m := Manifest{Deployments: []Deployment{
		{Target: "/srv/app", Source: FromGit(GitSource{URL: "a"})},
		{Target: "/srv/app/", Source: FromGit(GitSource{URL: "b"})},
	}}
	err := m.Validate()
	assert.ErrorIs(t, err, ErrBadManifest)
	assert.ErrorIs(t, err, ErrDuplicateTarget)

	assert.ErrorIs(t, (&Manifest{}).Validate(), ErrBadManifest)
}

func TestManifestDiskRoundTrip(t *testing.T) {
	m, err := Parse([]byte(testManifest))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, ToDisk(m, path))
	loaded, err := FromDisk(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	_, err = FromDisk(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadingManifest)
}

func TestRecord(t *testing.T) {
	fsys := afero.NewMemMapFs()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := Record{
		Source:      FromImage(ImageSource{Image: "nginx:1.27", ContainerName: "web", Port: 8080}),
		ContainerID: "4f2a9c",
		Created:     created,
	}
	require.NoError(t, WriteRecord(fsys, "/srv/web", r))
	loaded, err := ReadRecord(fsys, "/srv/web")
	require.NoError(t, err)
	assert.Equal(t, r, loaded)

	_, err = ReadRecord(fsys, "/srv/other")
	assert.ErrorIs(t, err, ErrLoadingRecord)
}
