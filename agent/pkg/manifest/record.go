package manifest

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// RecordFileName is written into the target directory of deployments that don't produce a
// project tree (images and packages) so the target still describes what was deployed.
const RecordFileName = "deployment.yaml"

type Record struct {
	Source      Source    `yaml:"source"`
	ContainerID string    `yaml:"container-id,omitempty"`
	Environment string    `yaml:"environment,omitempty"`
	Created     time.Time `yaml:"created"`
}

// WriteRecord creates dir if needed and writes the record to it.
func WriteRecord(fsys afero.Fs, dir string, r Record) error {
	data, err := yaml.Marshal(&r)
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fsys, filepath.Join(dir, RecordFileName), data, 0o644)
}

func ReadRecord(fsys afero.Fs, dir string) (Record, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(dir, RecordFileName))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrLoadingRecord, err)
	}
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrLoadingRecord, err)
	}
	return r, nil
}
