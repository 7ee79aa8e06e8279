// Package state models the installed-component record persisted at
// <prefix>/lib/rustlib/multirust-config.toml (spec.md §3.4/§6.2): the
// Manifestation's source of truth for "what is currently installed in
// this Prefix".
package state

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/toolchain-dist/tooldist/internal/manifest"
)

// ConfigVersion is the only config_version value this package writes or
// accepts.
const ConfigVersion = "1"

// Config is the typed installed-config file (spec.md §3.4).
type Config struct {
	Version    string          `toml:"config_version"`
	Components []ComponentRow  `toml:"components"`
}

// ComponentRow is the wire representation of one installed component
// (spec.md §6.2's `[[components]]` table).
type ComponentRow struct {
	Pkg    string `toml:"pkg"`
	Target string `toml:"target"`
}

// Set returns the Config's component set as ComponentIDs.
func (c *Config) Set() map[manifest.ComponentID]bool {
	out := make(map[manifest.ComponentID]bool, len(c.Components))
	for _, row := range c.Components {
		out[manifest.ComponentID{Pkg: row.Pkg, Target: row.Target}] = true
	}
	return out
}

// FromSet builds a Config whose Components table represents set, in a
// deterministic (sorted) order so repeated writes of an unchanged set
// produce byte-identical files.
func FromSet(set map[manifest.ComponentID]bool) *Config {
	rows := make([]ComponentRow, 0, len(set))
	for c := range set {
		rows = append(rows, ComponentRow{Pkg: c.Pkg, Target: c.Target})
	}
	sortRows(rows)
	return &Config{Version: ConfigVersion, Components: rows}
}

func sortRows(rows []ComponentRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0; j-- {
			if rowLess(rows[j], rows[j-1]) {
				rows[j], rows[j-1] = rows[j-1], rows[j]
			} else {
				break
			}
		}
	}
}

func rowLess(a, b ComponentRow) bool {
	if a.Pkg != b.Pkg {
		return a.Pkg < b.Pkg
	}
	return a.Target < b.Target
}

// Empty returns a Config with no installed components, representing a
// fresh Prefix (spec.md §4.4 step 1's first_install case).
func Empty() *Config {
	return &Config{Version: ConfigVersion, Components: nil}
}

// Load reads the installed-config file at path. A missing file is not an
// error: it returns Empty(), matching spec.md §4.4's "Load current Config
// (empty on first install)".
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: failed to read %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("state: failed to parse %s: %w", path, err)
	}
	if cfg.Version != ConfigVersion {
		return nil, fmt.Errorf("state: %s: unsupported config_version %q, expected %q", path, cfg.Version, ConfigVersion)
	}
	return &cfg, nil
}

// Save writes the installed-config file atomically: temp file in the same
// directory, then rename into place, so readers never observe a partial
// write (spec.md §3.4's crash-safety invariant).
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("state: failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".multirust-config.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("state: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	encoder := toml.NewEncoder(tmp)
	if err := encoder.Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("state: failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("state: failed to rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// Bytes renders c as TOML bytes without touching disk, used by the
// Manifestation to stage a ModifyFile entry in the Transaction (spec.md
// §4.4 step 6: "Update Config to represent T; record this as a
// ModifyFile in Tx").
func (c *Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(c); err != nil {
		return nil, fmt.Errorf("state: failed to render config: %w", err)
	}
	return buf.Bytes(), nil
}
