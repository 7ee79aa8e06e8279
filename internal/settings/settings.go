// Package settings provides user-editable installer settings, stored in
// <home>/settings.toml and modifiable outside the core (e.g. by a `config`
// CLI command).
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/distconfig"
)

// Settings represents user-configurable installer settings.
type Settings struct {
	// Telemetry enables or disables anonymous usage statistics.
	Telemetry bool `toml:"telemetry"`

	// DefaultAllowDowngrade sets the default for the update loop's
	// allow_downgrade flag (spec.md §4.5) when the caller does not
	// override it explicitly.
	DefaultAllowDowngrade bool `toml:"default_allow_downgrade"`

	// BacktrackLimit overrides distconfig.DefaultBacktrackLimit when set
	// to a positive value. Zero means "use the environment/default".
	BacktrackLimit int `toml:"backtrack_limit,omitempty"`

	// PinnedSignatureKeys maps a key fingerprint to the URL it should be
	// fetched from, the set of keys this installer trusts for detached
	// signature verification (spec.md §1 scope note).
	PinnedSignatureKeys map[string]string `toml:"signature_keys,omitempty"`
}

// Default returns a Settings with default values.
func Default() *Settings {
	return &Settings{
		Telemetry:             true,
		DefaultAllowDowngrade: false,
	}
}

// Load reads the settings file and returns the configuration. Returns
// default values if the file doesn't exist; returns an error for parse
// failures and for read failures other than a missing file.
func Load() (*Settings, error) {
	paths, err := distconfig.DefaultPaths()
	if err != nil {
		return Default(), nil
	}
	return loadFromPath(paths.SettingsFile)
}

func loadFromPath(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			ddlog.Default().Warn("settings file has permissive permissions",
				"path", path, "mode", fmt.Sprintf("%04o", mode), "expected", "0600")
		}
	}

	if _, err := toml.Decode(string(data), s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return s, nil
}

// Save writes the settings to the default settings file path.
func (s *Settings) Save() error {
	paths, err := distconfig.DefaultPaths()
	if err != nil {
		return fmt.Errorf("failed to resolve settings path: %w", err)
	}
	return s.saveToPath(paths.SettingsFile)
}

// saveToPath writes settings atomically with 0600 permissions: write to a
// temp file in the same directory, chmod, then rename into place.
func (s *Settings) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".settings.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	encoder := toml.NewEncoder(tmpFile)
	if err := encoder.Encode(s); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// EffectiveBacktrackLimit returns s.BacktrackLimit when positive, else the
// environment/default value from distconfig.
func (s *Settings) EffectiveBacktrackLimit() int {
	if s.BacktrackLimit > 0 {
		return s.BacktrackLimit
	}
	return distconfig.GetBacktrackLimit()
}

// AvailableKeys lists the string keys Get/Set accept, for a CLI's
// tab-completion or help text.
func AvailableKeys() []string {
	return []string{"telemetry", "default_allow_downgrade", "backtrack_limit"}
}

// Get returns the string form of the named setting, or an error if key is
// not one of AvailableKeys().
func (s *Settings) Get(key string) (string, error) {
	switch key {
	case "telemetry":
		return strconv.FormatBool(s.Telemetry), nil
	case "default_allow_downgrade":
		return strconv.FormatBool(s.DefaultAllowDowngrade), nil
	case "backtrack_limit":
		return strconv.Itoa(s.BacktrackLimit), nil
	default:
		return "", fmt.Errorf("unknown setting %q (available: %s)", key, strings.Join(AvailableKeys(), ", "))
	}
}

// Set parses value into the named setting. Callers must call Save to
// persist the change.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "telemetry":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("telemetry must be a bool: %w", err)
		}
		s.Telemetry = b
	case "default_allow_downgrade":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("default_allow_downgrade must be a bool: %w", err)
		}
		s.DefaultAllowDowngrade = b
	case "backtrack_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("backtrack_limit must be an int: %w", err)
		}
		s.BacktrackLimit = n
	default:
		return fmt.Errorf("unknown setting %q (available: %s)", key, strings.Join(AvailableKeys(), ", "))
	}
	return nil
}
