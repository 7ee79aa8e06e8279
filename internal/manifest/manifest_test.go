package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `
manifest-version = "2"
date = "2026-07-31"

[pkg.rust]
version = "1.80.0 (abcdef0 2026-07-30)"

[pkg.rust.target.x86_64-unknown-linux-gnu]
available = true
url = "https://example.test/dist/rust.tar.gz"
hash = "111111111111111111111111111111111111111111111111111111111111111e"

[[pkg.rust.target.x86_64-unknown-linux-gnu.components]]
pkg = "rustc"
target = "x86_64-unknown-linux-gnu"

[[pkg.rust.target.x86_64-unknown-linux-gnu.components]]
pkg = "cargo"
target = "x86_64-unknown-linux-gnu"

[[pkg.rust.target.x86_64-unknown-linux-gnu.extensions]]
pkg = "rust-src"
target = "*"

[pkg.rustc]
version = "1.80.0"

[pkg.rustc.target.x86_64-unknown-linux-gnu]
available = true
url = "https://example.test/dist/rustc.tar.gz"
hash = "222222222222222222222222222222222222222222222222222222222222222e"

[pkg.cargo]
version = "1.80.0"

[pkg.cargo.target.x86_64-unknown-linux-gnu]
available = true
url = "https://example.test/dist/cargo.tar.gz"
hash = "333333333333333333333333333333333333333333333333333333333333333e"

[pkg.rust-src]
version = "1.80.0"

[pkg.rust-src.target."*"]
available = true
url = "https://example.test/dist/rust-src.tar.gz"
hash = "444444444444444444444444444444444444444444444444444444444444444e"

[profiles]
minimal = ["rustc", "cargo"]
default = ["rustc", "cargo", "rust-std"]
complete = ["rustc", "cargo", "rust-std", "rust-src"]
`

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "channel-rust-stable.toml")
	require.NoError(t, err)
	require.Equal(t, "2", m.Version)
	require.Equal(t, "2026-07-31", m.Date)

	pkg, err := m.GetPackage("rust")
	require.NoError(t, err)
	require.Contains(t, pkg.Targets, "x86_64-unknown-linux-gnu")
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	data := `
manifest-version = "1"
date = "2026-07-31"
`
	_, err := Parse([]byte(data), "bad.toml")
	require.Error(t, err)
	var verr *UnsupportedManifestVersionError
	require.True(t, errors.As(err, &verr))
}

func TestParseRejectsUnknownPackageReference(t *testing.T) {
	data := `
manifest-version = "2"
date = "2026-07-31"

[pkg.rust]
version = "1.0"

[pkg.rust.target.x86_64-unknown-linux-gnu]
available = true
url = "https://example.test/x"
hash = "111111111111111111111111111111111111111111111111111111111111111e"

[[pkg.rust.target.x86_64-unknown-linux-gnu.components]]
pkg = "does-not-exist"
target = "x86_64-unknown-linux-gnu"
`
	_, err := Parse([]byte(data), "bad.toml")
	require.Error(t, err)
	var ref *InvalidComponentReferenceError
	require.True(t, errors.As(err, &ref))
}

func TestParseRejectsDualClassification(t *testing.T) {
	data := `
manifest-version = "2"
date = "2026-07-31"

[pkg.rust]
version = "1.0"

[pkg.rust.target.x86_64-unknown-linux-gnu]
available = true
url = "https://example.test/x"
hash = "111111111111111111111111111111111111111111111111111111111111111e"

[[pkg.rust.target.x86_64-unknown-linux-gnu.components]]
pkg = "rust-src"
target = "*"

[[pkg.rust.target.x86_64-unknown-linux-gnu.extensions]]
pkg = "rust-src"
target = "*"

[pkg.rust-src]
version = "1.0"

[pkg.rust-src.target."*"]
available = true
url = "https://example.test/y"
hash = "222222222222222222222222222222222222222222222222222222222222222e"
`
	_, err := Parse([]byte(data), "bad.toml")
	require.Error(t, err)
	var ref *InvalidComponentReferenceError
	require.True(t, errors.As(err, &ref))
}

func TestParseToleratesUnknownTopLevelFields(t *testing.T) {
	data := sampleManifest + "\nartifacts-server = \"https://example.test\"\n"
	_, err := Parse([]byte(data), "ok.toml")
	require.NoError(t, err)
}

func TestGetProfileComponentsDropsUnknownNames(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "channel.toml")
	require.NoError(t, err)

	got := m.GetProfileComponents("default", "x86_64-unknown-linux-gnu")
	require.Len(t, got, 2, "rust-std is absent from packages and must be silently dropped")
	for _, c := range got {
		require.NotEqual(t, "rust-std", c.Pkg)
	}
}

func TestRenameComponentSubstitutes(t *testing.T) {
	m := &Manifest{Renames: map[string]Rename{"rls": {To: "rust-analyzer"}}}
	got := m.RenameComponent(ComponentID{Pkg: "rls", Target: "x"})
	require.Equal(t, ComponentID{Pkg: "rust-analyzer", Target: "x"}, got)

	unchanged := m.RenameComponent(ComponentID{Pkg: "cargo", Target: "x"})
	require.Equal(t, ComponentID{Pkg: "cargo", Target: "x"}, unchanged)
}

func TestBestArchivePrefersZstThenXzThenGz(t *testing.T) {
	gzOnly := TargetedPackage{URL: "g", Hash: "gh"}
	url, hash, kind, ok := gzOnly.BestArchive()
	require.True(t, ok)
	require.Equal(t, "gz", kind)
	require.Equal(t, "g", url)
	require.Equal(t, "gh", hash)

	withXZ := TargetedPackage{URL: "g", Hash: "gh", XZURL: "x", XZHash: "xh"}
	_, _, kind, _ = withXZ.BestArchive()
	require.Equal(t, "xz", kind)

	withAll := TargetedPackage{URL: "g", Hash: "gh", XZURL: "x", XZHash: "xh", ZstURL: "z", ZstHash: "zh"}
	_, _, kind, _ = withAll.BestArchive()
	require.Equal(t, "zst", kind)
}

func TestIsListedAndIsExtension(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "channel.toml")
	require.NoError(t, err)

	srcID := ComponentID{Pkg: "rust-src", Target: Wildcard}
	require.True(t, m.IsListed(srcID, "x86_64-unknown-linux-gnu"))
	require.True(t, m.IsExtension(srcID, "x86_64-unknown-linux-gnu"))

	cargoID := ComponentID{Pkg: "cargo", Target: "x86_64-unknown-linux-gnu"}
	require.True(t, m.IsListed(cargoID, "x86_64-unknown-linux-gnu"))
	require.False(t, m.IsExtension(cargoID, "x86_64-unknown-linux-gnu"))
}
