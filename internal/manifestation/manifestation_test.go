package manifestation

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/notify"
	"github.com/toolchain-dist/tooldist/internal/prefix"
	"github.com/toolchain-dist/tooldist/internal/state"
	"github.com/toolchain-dist/tooldist/internal/txn"
)

const hostTarget = "x86_64-unknown-linux-gnu"

// buildComponentTarball produces a minimal valid rust-installer v3 tarball
// (spec.md §4.2) wrapping a single subcomponent directory equal to pkgName,
// containing one file entry.
func buildComponentTarball(t *testing.T, pkgName, fileContent string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	top := pkgName + "-nightly-" + hostTarget
	writeEntry := func(name string, mode int64, content string) {
		hdr := &tar.Header{Name: top + "/" + name, Mode: mode, Size: int64(len(content)), Typeflag: tar.TypeReg}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	writeEntry("rust-installer-version", 0644, "3")
	writeEntry("components", 0644, pkgName+"\n")
	writeEntry(pkgName+"/manifest.in", 0644, "file:bin/"+pkgName+"\n")
	writeEntry(pkgName+"/bin/"+pkgName, 0755, fileContent)

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func hashOf(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

type staticFetcher struct{ data []byte }

func (f staticFetcher) Fetch(ctx context.Context, url string, from int64) (io.ReadCloser, bool, error) {
	return io.NopCloser(bytes.NewReader(f.data[from:])), true, nil
}

type fetcherByURL map[string][]byte

func (f fetcherByURL) Fetch(ctx context.Context, url string, from int64) (io.ReadCloser, bool, error) {
	data := f[url]
	return io.NopCloser(bytes.NewReader(data[from:])), true, nil
}

func newManifestWithRustc(t *testing.T, rustcTarball []byte) (*manifest.Manifest, []byte) {
	t.Helper()
	hash := hashOf(rustcTarball)
	raw := []byte(`
manifest-version = "2"
date = "2026-07-31"

[pkg.rust]
version = "1.80.0"

[pkg.rust.target.` + hostTarget + `]
available = true
url = "https://example.test/rust.tar.gz"
hash = "` + hash + `"

[[pkg.rust.target.` + hostTarget + `.components]]
pkg = "rustc"
target = "` + hostTarget + `"

[pkg.rustc]
version = "1.80.0"

[pkg.rustc.target.` + hostTarget + `]
available = true
url = "https://example.test/rustc.tar.gz"
hash = "` + hash + `"
`)
	m, err := manifest.Parse(raw, "channel-rust-nightly.toml")
	require.NoError(t, err)
	return m, raw
}

func TestUpdateFirstInstall(t *testing.T) {
	root := t.TempDir()
	px := prefix.New(root)

	rustcTarball := buildComponentTarball(t, "rustc", "rustc binary bytes")
	m, raw := newManifestWithRustc(t, rustcTarball)

	cacheDir := t.TempDir()
	cache := downloadcache.NewCache(cacheDir, nil)
	dl := DownloadConfig{Cache: cache, Fetcher: staticFetcher{data: rustcTarball}}

	mf := New(px, hostTarget, txn.OSFsOps{}, nil)
	status, err := mf.Update(context.Background(), m, raw, Changes{}, false, dl, "nightly", "")
	require.NoError(t, err)
	require.Equal(t, Changed, status)

	cfg, err := state.Load(px.InstalledConfigPath())
	require.NoError(t, err)
	require.Contains(t, cfg.Set(), manifest.ComponentID{Pkg: "rustc", Target: hostTarget})

	installedBinary := px.Path(filepath.Join("bin", "rustc"))
	data, err := os.ReadFile(installedBinary)
	require.NoError(t, err)
	require.Equal(t, "rustc binary bytes", string(data))
}

func TestUpdateUnchangedWhenHashMatchesAndNothingRequested(t *testing.T) {
	root := t.TempDir()
	px := prefix.New(root)

	rustcTarball := buildComponentTarball(t, "rustc", "v1")
	m, raw := newManifestWithRustc(t, rustcTarball)

	cache := downloadcache.NewCache(t.TempDir(), nil)
	dl := DownloadConfig{Cache: cache, Fetcher: staticFetcher{data: rustcTarball}}

	mf := New(px, hostTarget, txn.OSFsOps{}, nil)
	_, err := mf.Update(context.Background(), m, raw, Changes{}, false, dl, "nightly", "")
	require.NoError(t, err)

	status, err := mf.Update(context.Background(), m, raw, Changes{}, false, dl, "nightly", manifest.Hash(raw))
	require.NoError(t, err)
	require.Equal(t, Unchanged, status)
}

func TestUpdateRemoveRequiredFails(t *testing.T) {
	root := t.TempDir()
	px := prefix.New(root)

	rustcTarball := buildComponentTarball(t, "rustc", "v1")
	m, raw := newManifestWithRustc(t, rustcTarball)

	cache := downloadcache.NewCache(t.TempDir(), nil)
	dl := DownloadConfig{Cache: cache, Fetcher: staticFetcher{data: rustcTarball}}

	mf := New(px, hostTarget, txn.OSFsOps{}, nil)
	_, err := mf.Update(context.Background(), m, raw, Changes{}, false, dl, "nightly", "")
	require.NoError(t, err)

	_, err = mf.Update(context.Background(), m, raw, Changes{
		RemoveComponents: []manifest.ComponentID{{Pkg: "rustc", Target: hostTarget}},
	}, false, dl, "nightly", "")
	require.Error(t, err)
	require.ErrorAs(t, err, new(*RemoveRequiredError))
}

func TestUpdateAddRemoveConflict(t *testing.T) {
	root := t.TempDir()
	px := prefix.New(root)

	rustcTarball := buildComponentTarball(t, "rustc", "v1")
	m, raw := newManifestWithRustc(t, rustcTarball)

	cache := downloadcache.NewCache(t.TempDir(), nil)
	dl := DownloadConfig{Cache: cache, Fetcher: staticFetcher{data: rustcTarball}}

	mf := New(px, hostTarget, txn.OSFsOps{}, nil)
	same := manifest.ComponentID{Pkg: "rustc", Target: hostTarget}
	_, err := mf.Update(context.Background(), m, raw, Changes{
		ExplicitAddComponents: []manifest.ComponentID{same},
		RemoveComponents:      []manifest.ComponentID{same},
	}, false, dl, "nightly", "")
	require.Error(t, err)
	require.ErrorAs(t, err, new(*AddRemoveConflictError))
}

func TestUpdateNotifiesInstallingComponent(t *testing.T) {
	root := t.TempDir()
	px := prefix.New(root)

	rustcTarball := buildComponentTarball(t, "rustc", "v1")
	m, raw := newManifestWithRustc(t, rustcTarball)

	cache := downloadcache.NewCache(t.TempDir(), nil)
	dl := DownloadConfig{Cache: cache, Fetcher: staticFetcher{data: rustcTarball}}

	var events []notify.Event
	handler := notify.HandlerFunc(func(e notify.Event) { events = append(events, e) })

	mf := New(px, hostTarget, txn.OSFsOps{}, handler)
	_, err := mf.Update(context.Background(), m, raw, Changes{}, false, dl, "nightly", "")
	require.NoError(t, err)

	var sawInstalling bool
	for _, e := range events {
		if _, ok := e.(notify.InstallingComponent); ok {
			sawInstalling = true
		}
	}
	require.True(t, sawInstalling)
}
