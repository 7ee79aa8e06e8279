// Package distest is the ambient test harness shared across this
// module's _test.go files: temp-dir-backed prefixes, a fake in-process
// downloadcache.Fetcher keyed by URL, and small fixture builders for the
// rust-installer tarball layout and v2 channel manifest TOML.
package distest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/prefix"
)

// TempPrefix creates a temporary directory and wraps it as a Prefix.
// Cleanup is handled by t.TempDir itself.
func TempPrefix(t *testing.T) *prefix.Prefix {
	t.Helper()
	return prefix.New(t.TempDir())
}

// Fetcher serves byte slices out of a URL-keyed map, returning
// *downloadcache.DownloadNotExistsError for any URL absent from the map
// — the 404 convention internal/downloadcache.Cache and the update loop
// both rely on.
type Fetcher map[string][]byte

func (f Fetcher) Fetch(ctx context.Context, url string, from int64) (io.ReadCloser, bool, error) {
	data, ok := f[url]
	if !ok {
		return nil, false, &downloadcache.DownloadNotExistsError{URL: url}
	}
	if from > int64(len(data)) {
		from = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[from:])), true, nil
}

// HashOf returns the lowercase hex sha256 digest of b, the format every
// sidecar/cache hash in this module uses.
func HashOf(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Tarball builds a minimal rust-installer-layout .tar.gz: a single
// top-level "<pkgName>-nightly-<target>" directory containing
// rust-installer-version, a components file naming pkgName as its only
// subcomponent, and a manifest.in installing one file whose content is
// the given marker string (so tests can tell apart which version of a
// component's tarball actually got extracted).
func Tarball(t *testing.T, pkgName, target, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	top := pkgName + "-nightly-" + target
	write := func(name string, mode int64, data string) {
		hdr := &tar.Header{Name: top + "/" + name, Mode: mode, Size: int64(len(data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("distest: write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(data)); err != nil {
			t.Fatalf("distest: write tar entry: %v", err)
		}
	}
	write("rust-installer-version", 0644, "3")
	write("components", 0644, pkgName+"\n")
	write(pkgName+"/manifest.in", 0644, "file:bin/"+pkgName+"\n")
	write(pkgName+"/bin/"+pkgName, 0755, content)
	if err := tw.Close(); err != nil {
		t.Fatalf("distest: close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("distest: close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// ManifestV2TOML renders a minimal v2 channel manifest for target with a
// single required "rustc" component and an optional "extra" extension,
// whose availability and hash are caller-controlled so backtracking
// scenarios can flip them date to date.
func ManifestV2TOML(date, target string, extraAvailable bool, rustcHash, extraHash string) []byte {
	avail := "false"
	if extraAvailable {
		avail = "true"
	}
	return []byte(`
manifest-version = "2"
date = "` + date + `"

[pkg.rust]
version = "1.80.0"

[pkg.rust.target.` + target + `]
available = true
url = "https://dist.test/rust.tar.gz"
hash = "` + rustcHash + `"

[[pkg.rust.target.` + target + `.components]]
pkg = "rustc"
target = "` + target + `"

[[pkg.rust.target.` + target + `.extensions]]
pkg = "extra"
target = "` + target + `"

[pkg.rustc]
version = "1.80.0"

[pkg.rustc.target.` + target + `]
available = true
url = "https://dist.test/rustc.tar.gz"
hash = "` + rustcHash + `"

[pkg.extra]
version = "1.80.0"

[pkg.extra.target.` + target + `]
available = ` + avail + `
url = "https://dist.test/extra.tar.gz"
hash = "` + extraHash + `"
`)
}
