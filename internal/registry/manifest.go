package registry

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// Manifest is one handler's manifest.yaml (§3.8, §4.10).
type Manifest struct {
	Name         string                    `yaml:"name"`
	Types        []string                  `yaml:"types"`
	Projector    string                    `yaml:"projector"`
	Commands     map[string]map[string]any `yaml:"commands"`
	Job          string                    `yaml:"job"`
	InputSchema  string                    `yaml:"inputSchema"`
	OutputSchema string                    `yaml:"outputSchema"`
}

// EffectiveTypes returns Types, defaulting to [Name] when the manifest
// leaves types unset (§4.10 "defaults to the handler's own name").
func (m Manifest) EffectiveTypes() []string {
	if len(m.Types) > 0 {
		return m.Types
	}
	return []string{m.Name}
}

// loadManifest parses dir/manifest.yaml. A missing file is not an error
// at this layer — callers decide whether an un-manifested directory is
// significant.
func loadManifest(dir string) (*Manifest, bool, error) {
	path := filepath.Join(dir, "manifest.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, runtimeerr.New(runtimeerr.SchemaError, "registry.loadManifest", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, false, runtimeerr.New(runtimeerr.SchemaError, "registry.loadManifest", err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	return &m, true, nil
}
