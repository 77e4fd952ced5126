// Package manifest reads and writes world/manifest.json, the small record
// that fixes a world's format version, seed and generator. Files are
// validated against the embedded JSON schema on both load and save, so a
// hand-edited manifest fails before it can desync the terrain.
package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed manifest.schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("manifest.schema.json", schemaJSON)

// Format is the current manifest format version.
const Format = 1

type Manifest struct {
	Format           int    `json:"format"`
	Seed             int64  `json:"seed"`
	Generator        string `json:"generator,omitempty"`
	CreatedAt        string `json:"created_at"`
	CreatedBySession string `json:"created_by_session,omitempty"`
}

// Path is the manifest location inside a world directory.
func Path(worldDir string) string {
	return filepath.Join(worldDir, "manifest.json")
}

// Load reads and validates the manifest of worldDir.
func Load(worldDir string) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(Path(worldDir))
	if err != nil {
		return m, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return m, fmt.Errorf("manifest: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return m, fmt.Errorf("manifest: %w", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("manifest: %w", err)
	}
	return m, nil
}

// Save validates and writes m to worldDir.
func Save(worldDir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("manifest: refusing to write invalid manifest: %w", err)
	}
	return os.WriteFile(Path(worldDir), append(raw, '\n'), 0o644)
}

// LoadOrCreate returns the existing manifest, or persists and returns the
// fallback when the world is fresh.
func LoadOrCreate(worldDir string, fallback Manifest) (Manifest, error) {
	m, err := Load(worldDir)
	if err == nil {
		return m, nil
	}
	if !os.IsNotExist(err) {
		return Manifest{}, err
	}
	if err := Save(worldDir, fallback); err != nil {
		return Manifest{}, err
	}
	return fallback, nil
}
