// SPDX-License-Identifier: GPL-3.0-only

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// record is the on-disk form of a sample. Luma is omitted when absent.
type record struct {
	Lux        uint64 `yaml:"lux"`
	Luma       *uint8 `yaml:"luma,omitempty"`
	Brightness uint64 `yaml:"brightness"`
}

type document struct {
	Output  string   `yaml:"output"`
	Samples []record `yaml:"samples"`
}

// Dir keeps one YAML file per output in a directory.
type Dir struct {
	path string
}

// NewDir creates a YAML backend rooted at path. The directory is created on first save.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// For returns the YAML file of the named output.
func (d *Dir) For(output string) controller.Persistence {
	return NewYAMLFile(d.path, output)
}

// Close is a no-op.
func (d *Dir) Close() error {
	return nil
}

// YAMLFile persists the samples of a single output.
type YAMLFile struct {
	output string
	path   string
}

// Verify YAMLFile implements controller.Persistence.
var _ controller.Persistence = (*YAMLFile)(nil)

// NewYAMLFile creates the persistence of output under dir.
func NewYAMLFile(dir, output string) *YAMLFile {
	return &YAMLFile{
		output: output,
		path:   filepath.Join(dir, fileName(output)+".yaml"),
	}
}

// Path returns the file location.
func (f *YAMLFile) Path() string {
	return f.path
}

// Load reads the samples. A missing file is not an error and yields no samples.
func (f *YAMLFile) Load() ([]controller.Sample, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}

	samples := make([]controller.Sample, 0, len(doc.Samples))
	for _, r := range doc.Samples {
		luma := controller.NoLuminance
		if r.Luma != nil {
			if *r.Luma > 100 {
				return nil, fmt.Errorf("invalid luma %d in %s", *r.Luma, f.path)
			}
			luma = controller.Luma(*r.Luma)
		}
		samples = append(samples, controller.NewSample(r.Lux, luma, r.Brightness))
	}
	return samples, nil
}

// Save atomically replaces the file with samples.
func (f *YAMLFile) Save(samples []controller.Sample) error {
	doc := document{Output: f.output, Samples: make([]record, 0, len(samples))}
	for _, s := range samples {
		r := record{Lux: s.Lux, Brightness: s.Brightness}
		if v, ok := s.Luminance.Get(); ok {
			r.Luma = &v
		}
		doc.Samples = append(doc.Samples, r)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode samples: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
