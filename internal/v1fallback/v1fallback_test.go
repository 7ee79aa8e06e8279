package v1fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolchain-dist/tooldist/internal/distest"
	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/txn"
)

const hostTarget = "x86_64-unknown-linux-gnu"
const distRoot = "https://dist.test"

func newFallback(t *testing.T, fetcher distest.Fetcher) *Fallback {
	t.Helper()
	px := distest.TempPrefix(t)
	cache := downloadcache.NewCache(t.TempDir(), nil)
	return &Fallback{
		Prefix:     px,
		HostTarget: hostTarget,
		DistRoot:   distRoot,
		FS:         txn.OSFsOps{},
		Cache:      cache,
		Fetcher:    fetcher,
	}
}

func TestApplyFirstInstallDefaultBundle(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	cargoTar := distest.Tarball(t, "cargo", hostTarget, "cargo-v1")
	cargoHash := distest.HashOf(cargoTar)

	listing := "rustc-nightly-" + hostTarget + ".tar.gz\ncargo-nightly-" + hostTarget + ".tar.gz\n"

	fetcher := distest.Fetcher{
		distRoot + "/dist/channel-rust-nightly":                           []byte(listing),
		distRoot + "/dist/rustc-nightly-" + hostTarget + ".tar.gz":        rustcTar,
		distRoot + "/dist/rustc-nightly-" + hostTarget + ".tar.gz.sha256": []byte(rustcHash),
		distRoot + "/dist/cargo-nightly-" + hostTarget + ".tar.gz":        cargoTar,
		distRoot + "/dist/cargo-nightly-" + hostTarget + ".tar.gz.sha256": []byte(cargoHash),
	}

	f := newFallback(t, fetcher)
	status, err := f.Apply(context.Background(), "nightly", "", manifestation.Changes{}, false)
	require.NoError(t, err)
	require.Equal(t, manifestation.Changed, status)
}

func TestApplyExplicitAddUnknownComponent(t *testing.T) {
	listing := "rustc-nightly-" + hostTarget + ".tar.gz\n"
	fetcher := distest.Fetcher{
		distRoot + "/dist/channel-rust-nightly": []byte(listing),
	}
	f := newFallback(t, fetcher)
	_, err := f.Apply(context.Background(), "nightly", "", manifestation.Changes{
		ExplicitAddComponents: []manifest.ComponentID{{Pkg: "does-not-exist", Target: hostTarget}},
	}, false)
	require.Error(t, err)
	var unknown *manifestation.UnknownComponentError
	require.ErrorAs(t, err, &unknown)
}

func TestApplyNoChangesIsUnchanged(t *testing.T) {
	fetcher := distest.Fetcher{
		distRoot + "/dist/channel-rust-nightly": []byte(""),
	}
	f := newFallback(t, fetcher)
	status, err := f.Apply(context.Background(), "nightly", "", manifestation.Changes{}, false)
	require.NoError(t, err)
	require.Equal(t, manifestation.Unchanged, status)
}

func TestApplyMissingListingPropagatesNotExists(t *testing.T) {
	fetcher := distest.Fetcher{}
	f := newFallback(t, fetcher)
	_, err := f.Apply(context.Background(), "nightly", "", manifestation.Changes{}, false)
	require.Error(t, err)
	var notExists *downloadcache.DownloadNotExistsError
	require.ErrorAs(t, err, &notExists)
}
