// Package prefix implements spec.md §3.1: a path wrapper denoting the
// installation root, computing canonical subpaths used by the state,
// manifest, and component-install machinery.
package prefix

import "path/filepath"

// Prefix is the directory under which all toolchain files for one
// installation live (the GLOSSARY's "Prefix").
type Prefix struct {
	Root string
}

// New wraps root as a Prefix.
func New(root string) *Prefix {
	return &Prefix{Root: root}
}

// Path joins relpath onto the prefix root. relpath must already be a
// clean, relative, non-escaping path; callers that consume untrusted
// paths (tarball entries, manifest.in lines) must sanitize before calling
// this - see componentio.SanitizeRelPath.
func (p *Prefix) Path(relpath string) string {
	return filepath.Join(p.Root, relpath)
}

// RustlibDir returns the directory that holds per-prefix installer
// metadata, mirroring upstream's lib/rustlib layout (spec.md §6.2).
func (p *Prefix) RustlibDir() string {
	return p.Path(rustlibRel)
}

const rustlibRel = "lib/rustlib"

// ManifestConfigPath returns the path to the pinned channel manifest
// written on a successful update (spec.md §6.2).
func (p *Prefix) ManifestConfigPath() string {
	return filepath.Join(p.RustlibDir(), "multirust-channel-manifest.toml")
}

// InstalledConfigPath returns the path to the installed-component record
// (spec.md §3.4 / §6.2).
func (p *Prefix) InstalledConfigPath() string {
	return filepath.Join(p.RustlibDir(), "multirust-config.toml")
}

// LockPath returns the advisory lock file path acquired for the duration
// of a Manifestation.Update (spec.md §5).
func (p *Prefix) LockPath() string {
	return p.ManifestConfigPath() + ".lock"
}

// ComponentsDir returns the directory where per-component file manifests
// (the recorded list of paths each component owns, used to drive
// uninstall) are stored.
func (p *Prefix) ComponentsDir() string {
	return filepath.Join(p.RustlibDir(), "components")
}
