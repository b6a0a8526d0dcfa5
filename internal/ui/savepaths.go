package ui

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SavePaths persists per-ROM directory overrides for battery RAM (.sav)
// and save-state files, so a ROM on read-only media can still save
// somewhere writable. Generalizes the teacher's in-memory
// Config.PerROMCompatPalette map into a file the host reloads on start.
type SavePaths struct {
	// Overrides maps an absolute ROM path to the directory its .sav and
	// .savestate files should live in, instead of alongside the ROM.
	Overrides map[string]string `yaml:"overrides"`
}

// LoadSavePaths reads path, returning an empty SavePaths if it doesn't
// exist yet (not an error: a fresh install has no overrides).
func LoadSavePaths(path string) (*SavePaths, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &SavePaths{Overrides: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, err
	}
	var sp SavePaths
	if err := yaml.Unmarshal(data, &sp); err != nil {
		return nil, err
	}
	if sp.Overrides == nil {
		sp.Overrides = make(map[string]string)
	}
	return &sp, nil
}

// Save writes sp to path as YAML.
func (sp *SavePaths) Save(path string) error {
	data, err := yaml.Marshal(sp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SetOverride records dir as where romPath's .sav/.savestate should live.
func (sp *SavePaths) SetOverride(romPath, dir string) {
	if sp.Overrides == nil {
		sp.Overrides = make(map[string]string)
	}
	sp.Overrides[romPath] = dir
}

// DirFor returns the overridden save directory for romPath, or "" if
// none is configured (the caller should fall back to the ROM's own
// directory).
func (sp *SavePaths) DirFor(romPath string) string {
	if sp == nil {
		return ""
	}
	return sp.Overrides[romPath]
}
