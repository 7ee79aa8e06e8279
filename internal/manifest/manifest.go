// Package manifest models the channel manifest (spec.md §3.3/§4.3/§6.1):
// the typed v2 wire format describing which packages and targets are
// available on a given release date, and the helpers the reconciliation
// engine needs to resolve component names against it.
package manifest

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// SupportedVersion is the only manifest-version value this parser accepts.
const SupportedVersion = "2"

// Manifest is the typed v2 channel manifest (spec.md §3.3).
type Manifest struct {
	Version  string             `toml:"manifest-version"`
	Date     string             `toml:"date"`
	Packages map[string]Package `toml:"pkg"`
	Renames  map[string]Rename  `toml:"renames"`
	Profiles map[string][]string `toml:"profiles"`
}

// Rename is a single entry of the renames table: the old pkg_name is the
// map key, `To` is the new pkg_name.
type Rename struct {
	To string `toml:"to"`
}

// Package is one entry of the packages table.
type Package struct {
	Version       string                     `toml:"version"`
	GitCommitHash string                     `toml:"git_commit_hash,omitempty"`
	Targets       map[string]TargetedPackage `toml:"target"`
}

// TargetedPackage is a Package's per-target availability and content
// descriptor (spec.md §3.3).
type TargetedPackage struct {
	Available bool   `toml:"available"`
	URL       string `toml:"url"`
	Hash      string `toml:"hash"`
	XZURL     string `toml:"xz_url,omitempty"`
	XZHash    string `toml:"xz_hash,omitempty"`
	ZstURL    string `toml:"zst_url,omitempty"`
	ZstHash   string `toml:"zst_hash,omitempty"`

	// Components are required=true entries (is_extension=false);
	// Extensions are optional add-ons (is_extension=true). A pkg_name may
	// appear in at most one of the two for a given target.
	Components []ComponentRef `toml:"components,omitempty"`
	Extensions []ComponentRef `toml:"extensions,omitempty"`
}

// ComponentRef is the wire representation of a Component entry within a
// TargetedPackage's components/extensions list.
type ComponentRef struct {
	Pkg    string `toml:"pkg"`
	Target string `toml:"target"`
}

// ID converts a wire ComponentRef into a ComponentID.
func (r ComponentRef) ID() ComponentID {
	return ComponentID{Pkg: r.Pkg, Target: r.Target}
}

// BestArchive picks the preferred compression for a TargetedPackage:
// zstd, then xz, then gzip, per spec.md §4.4 step 6 ("Prefer zstd → xz →
// gz by availability").
func (tp TargetedPackage) BestArchive() (url, hash, kind string, ok bool) {
	switch {
	case tp.ZstURL != "" && tp.ZstHash != "":
		return tp.ZstURL, tp.ZstHash, "zst", true
	case tp.XZURL != "" && tp.XZHash != "":
		return tp.XZURL, tp.XZHash, "xz", true
	case tp.URL != "" && tp.Hash != "":
		return tp.URL, tp.Hash, "gz", true
	default:
		return "", "", "", false
	}
}

// Parse decodes raw TOML bytes into a Manifest, enforcing spec.md §3.3's
// invariants. path is used only to annotate errors.
func Parse(data []byte, path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, &ParsingError{Path: path, Err: err}
	}
	_ = meta // unknown top-level fields are tolerated by design (spec.md §4.3)

	if m.Version != SupportedVersion {
		return nil, &UnsupportedManifestVersionError{Path: path, Version: m.Version}
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// validate enforces spec.md §3.3's cross-referential invariants: every
// component/extension resolves to a packages entry after rename
// resolution, no pkg_name appears in both components and extensions of
// the same target, and every hash is well-formed.
func (m *Manifest) validate() error {
	for pkgName, pkg := range m.Packages {
		for target, tp := range pkg.Targets {
			if tp.Available {
				if err := validateHashes(pkgName, target, tp); err != nil {
					return err
				}
			}

			seen := make(map[string]bool, len(tp.Components)+len(tp.Extensions))
			for _, c := range tp.Components {
				if seen[c.Pkg+"\x00"+c.Target] {
					return &InvalidComponentReferenceError{Package: pkgName, Target: target,
						Detail: fmt.Sprintf("component %s/%s listed twice", c.Pkg, c.Target)}
				}
				seen[c.Pkg+"\x00"+c.Target] = true
				if err := m.resolveReference(pkgName, target, c); err != nil {
					return err
				}
			}
			extSeen := make(map[string]bool, len(tp.Extensions))
			for _, c := range tp.Extensions {
				key := c.Pkg + "\x00" + c.Target
				if extSeen[key] {
					return &InvalidComponentReferenceError{Package: pkgName, Target: target,
						Detail: fmt.Sprintf("extension %s/%s listed twice", c.Pkg, c.Target)}
				}
				extSeen[key] = true
				if seen[key] {
					return &InvalidComponentReferenceError{Package: pkgName, Target: target,
						Detail: fmt.Sprintf("%s/%s listed in both components and extensions", c.Pkg, c.Target)}
				}
				if err := m.resolveReference(pkgName, target, c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Manifest) resolveReference(owner, ownerTarget string, ref ComponentRef) error {
	resolved := m.RenameComponent(ComponentID{Pkg: ref.Pkg, Target: ref.Target})
	if _, ok := m.Packages[resolved.Pkg]; !ok {
		return &InvalidComponentReferenceError{Package: owner, Target: ownerTarget,
			Detail: fmt.Sprintf("references unknown package %q", resolved.Pkg)}
	}
	return nil
}

func validateHashes(pkgName, target string, tp TargetedPackage) error {
	fields := map[string]string{"hash": tp.Hash, "xz_hash": tp.XZHash, "zst_hash": tp.ZstHash}
	for field, value := range fields {
		if value == "" {
			continue
		}
		if !isHexSHA256(value) {
			return &InvalidHashError{Package: pkgName, Target: target, Field: field, Value: value}
		}
	}
	if tp.Hash == "" {
		return &InvalidHashError{Package: pkgName, Target: target, Field: "hash", Value: ""}
	}
	return nil
}

func isHexSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
