// Package distconfig holds process-wide configuration for the installer
// core: the home directory layout and environment-variable tunables. It
// is the ProcessEnv capability spec.md §9 asks implementations to confine
// global overrides to, so the rest of the core stays pure.
package distconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// EnvHome overrides the default installer home directory.
	EnvHome = "TOOLDIST_HOME"

	// EnvAPITimeout configures the HTTP fetch timeout used by callers of
	// the download cache's injected Fetcher.
	EnvAPITimeout = "TOOLDIST_API_TIMEOUT"

	// EnvBacktrackLimit overrides the default backtracking decrement
	// budget (spec.md §4.5).
	EnvBacktrackLimit = "TOOLDIST_BACKTRACK_LIMIT"

	// EnvOverrideHostTriple lets the operator force a host target triple,
	// bypassing auto-detection. Confined here per spec.md §9.
	EnvOverrideHostTriple = "TOOLDIST_OVERRIDE_HOST_TRIPLE"

	// EnvAllowDowngrade enables allow_downgrade by default for the update
	// loop without requiring a CLI flag each time.
	EnvAllowDowngrade = "TOOLDIST_ALLOW_DOWNGRADE"

	// DefaultAPITimeout is the default timeout for manifest/tarball fetches.
	DefaultAPITimeout = 30 * time.Second

	// DefaultBacktrackLimit is spec.md §4.5's default backtrack_limit.
	DefaultBacktrackLimit = 21

	// EpochDate is the fixed epoch spec.md §4.5 step 4 backtracking must
	// not cross even with allow_downgrade, matching upstream's own floor.
	EpochDate = "2014-12-20"
)

// GetAPITimeout returns the configured fetch timeout from TOOLDIST_API_TIMEOUT.
// If unset or invalid, returns DefaultAPITimeout. Clamped to [1s, 10m].
func GetAPITimeout() time.Duration {
	envValue := os.Getenv(EnvAPITimeout)
	if envValue == "" {
		return DefaultAPITimeout
	}

	d, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvAPITimeout, envValue, DefaultAPITimeout)
		return DefaultAPITimeout
	}

	if d < 1*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 1s\n", EnvAPITimeout, d)
		return 1 * time.Second
	}
	if d > 10*time.Minute {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 10m\n", EnvAPITimeout, d)
		return 10 * time.Minute
	}
	return d
}

// GetBacktrackLimit returns the configured backtrack_limit from
// TOOLDIST_BACKTRACK_LIMIT. If unset or invalid, returns DefaultBacktrackLimit.
// Clamped to [1, 1000].
func GetBacktrackLimit() int {
	envValue := os.Getenv(EnvBacktrackLimit)
	if envValue == "" {
		return DefaultBacktrackLimit
	}

	n, err := strconv.Atoi(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n",
			EnvBacktrackLimit, envValue, DefaultBacktrackLimit)
		return DefaultBacktrackLimit
	}
	if n < 1 {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%d), using minimum 1\n", EnvBacktrackLimit, n)
		return 1
	}
	if n > 1000 {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum 1000\n", EnvBacktrackLimit, n)
		return 1000
	}
	return n
}

// OverrideHostTriple returns the operator-forced host triple, or "" if not set.
func OverrideHostTriple() string {
	return os.Getenv(EnvOverrideHostTriple)
}

// AllowDowngradeDefault returns the default value for allow_downgrade taken
// from TOOLDIST_ALLOW_DOWNGRADE, defaulting to false when unset or invalid.
func AllowDowngradeDefault() bool {
	v := os.Getenv(EnvAllowDowngrade)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default false\n", EnvAllowDowngrade, v)
		return false
	}
	return b
}

// DefaultHomeOverride can be set by the binary's main package (via ldflags)
// to change the default home directory for dev builds. TOOLDIST_HOME still
// takes precedence.
var DefaultHomeOverride string

// Paths holds the directory layout for one installer home.
type Paths struct {
	HomeDir          string // $TOOLDIST_HOME
	PrefixDir        string // $TOOLDIST_HOME/toolchains/<name> roots live under here
	CacheDir         string // $TOOLDIST_HOME/cache
	DownloadCacheDir string // $TOOLDIST_HOME/cache/downloads
	KeyCacheDir      string // $TOOLDIST_HOME/cache/keys (PGP public keys for signature verification)
	SettingsFile     string // $TOOLDIST_HOME/settings.toml
}

// DefaultPaths returns the default directory layout, honoring TOOLDIST_HOME
// and DefaultHomeOverride.
func DefaultPaths() (*Paths, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		if DefaultHomeOverride != "" {
			home = DefaultHomeOverride
		} else {
			h, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			home = filepath.Join(h, ".tooldist")
		}
	}

	return &Paths{
		HomeDir:          home,
		PrefixDir:        filepath.Join(home, "toolchains"),
		CacheDir:         filepath.Join(home, "cache"),
		DownloadCacheDir: filepath.Join(home, "cache", "downloads"),
		KeyCacheDir:      filepath.Join(home, "cache", "keys"),
		SettingsFile:     filepath.Join(home, "settings.toml"),
	}, nil
}

// EnsureDirectories creates all necessary directories.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.HomeDir, p.PrefixDir, p.CacheDir, p.DownloadCacheDir, p.KeyCacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ToolchainDir returns the root directory for a named toolchain prefix
// (e.g. "nightly-x86_64-unknown-linux-gnu").
func (p *Paths) ToolchainDir(name string) string {
	return filepath.Join(p.PrefixDir, name)
}
