package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Manifest maps worker aliases to script paths, e.g.:
//
//	workers:
//	  echo: echo.js
//	  resize: image/resize.js
type Manifest struct {
	Workers map[string]string `yaml:"workers"`
}

// LoadManifest reads and parses a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Workers == nil {
		m.Workers = map[string]string{}
	}
	return &m, nil
}

// Resolve maps an alias to its script path. Unknown names pass through
// unchanged so callers can address scripts by path directly.
func (m *Manifest) Resolve(name string) string {
	if m == nil {
		return name
	}
	if path, ok := m.Workers[name]; ok {
		return path
	}
	return name
}
