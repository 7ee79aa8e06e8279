package update

import (
	"context"
	"errors"
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

func newUpdater(t *testing.T, fetcher distest.Fetcher) *Updater {
	t.Helper()
	px := distest.TempPrefix(t)
	mf := manifestation.New(px, hostTarget, txn.OSFsOps{}, nil)
	cache := downloadcache.NewCache(t.TempDir(), nil)
	return &Updater{
		Manifestation: mf,
		DistRoot:      distRoot,
		Cache:         cache,
		Fetcher:       fetcher,
	}
}

func TestRunFirstInstallStableChannel(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	m := distest.ManifestV2TOML("2026-07-31", hostTarget, false, rustcHash, "")
	mHash := distest.HashOf(m)

	url := manifestV2URL(distRoot, "stable", "")
	fetcher := distest.Fetcher{
		sha256SidecarURL(url):             []byte(mHash + "  channel-rust-stable.toml\n"),
		url:                                m,
		"https://dist.test/rustc.tar.gz":  rustcTar,
	}

	u := newUpdater(t, fetcher)
	res, err := u.Run(context.Background(), Request{Channel: "stable"})
	require.NoError(t, err)
	require.Equal(t, manifestation.Changed, res.Status)
	require.Equal(t, "2026-07-31", res.Date)
}

func TestRunBacktracksOnMissingComponent(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	extraTar := distest.Tarball(t, "extra", hostTarget, "extra-v1")
	extraHash := distest.HashOf(extraTar)

	today := distest.ManifestV2TOML("2026-07-31", hostTarget, false, rustcHash, "")
	todayHash := distest.HashOf(today)
	yesterday := distest.ManifestV2TOML("2026-07-30", hostTarget, true, rustcHash, extraHash)
	yesterdayHash := distest.HashOf(yesterday)

	todayURL := manifestV2URL(distRoot, "nightly", "")
	yesterdayURL := manifestV2URL(distRoot, "nightly", "2026-07-30")

	fetcher := distest.Fetcher{
		sha256SidecarURL(todayURL):       []byte(todayHash),
		todayURL:                         today,
		sha256SidecarURL(yesterdayURL):   []byte(yesterdayHash),
		yesterdayURL:                     yesterday,
		"https://dist.test/rustc.tar.gz": rustcTar,
		"https://dist.test/extra.tar.gz": extraTar,
	}

	u := newUpdater(t, fetcher)
	res, err := u.Run(context.Background(), Request{
		Channel:                "nightly",
		ExplicitAddComponents:  []manifest.ComponentID{{Pkg: "extra", Target: hostTarget}},
		AllowDowngrade:         true,
	})
	require.NoError(t, err)
	require.Equal(t, manifestation.Changed, res.Status)
	require.Equal(t, "2026-07-30", res.Date)
}

func TestRunBacktrackExhausted(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	today := distest.ManifestV2TOML("2026-07-31", hostTarget, false, rustcHash, "")
	todayHash := distest.HashOf(today)
	todayURL := manifestV2URL(distRoot, "nightly", "")

	fetcher := distest.Fetcher{
		sha256SidecarURL(todayURL):       []byte(todayHash),
		todayURL:                         today,
		"https://dist.test/rustc.tar.gz": rustcTar,
	}

	u := newUpdater(t, fetcher)
	u.BacktrackLimit = 1
	_, err := u.Run(context.Background(), Request{
		Channel:                "nightly",
		ExplicitAddComponents:  []manifest.ComponentID{{Pkg: "extra", Target: hostTarget}},
		AllowDowngrade:         true,
	})
	require.Error(t, err)
	var exhausted *BacktrackExhaustedError
	require.True(t, errors.As(err, &exhausted))
}

func TestRunManifestChecksumMismatchDoesNotBacktrack(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	today := distest.ManifestV2TOML("2026-07-31", hostTarget, false, rustcHash, "")
	todayURL := manifestV2URL(distRoot, "nightly", "")

	fetcher := distest.Fetcher{
		sha256SidecarURL(todayURL): []byte("0000000000000000000000000000000000000000000000000000000000000000"[:64]),
		todayURL:                   today,
	}

	u := newUpdater(t, fetcher)
	_, err := u.Run(context.Background(), Request{Channel: "nightly", AllowDowngrade: true})
	require.Error(t, err)
	var rot *ManifestChecksumRotationError
	require.True(t, errors.As(err, &rot))
}

func TestRunFallsBackToV1WhenManifestMissing(t *testing.T) {
	fetcher := distest.Fetcher{}
	u := newUpdater(t, fetcher)

	var called bool
	u.V1Fallback = v1FallbackFunc(func(ctx context.Context, channel, date string, changes manifestation.Changes, force bool) (manifestation.UpdateStatus, error) {
		called = true
		require.Equal(t, "stable", channel)
		return manifestation.Changed, nil
	})

	res, err := u.Run(context.Background(), Request{Channel: "stable"})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, manifestation.Changed, res.Status)
}

func TestRunPinnedVersionChannelSucceeds(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	m := distest.ManifestV2TOML("2026-07-31", hostTarget, false, rustcHash, "")
	mHash := distest.HashOf(m)

	url := manifestV2URL(distRoot, "1.80.0", "")
	fetcher := distest.Fetcher{
		sha256SidecarURL(url):             []byte(mHash + "  channel-rust-1.80.0.toml\n"),
		url:                               m,
		"https://dist.test/rustc.tar.gz": rustcTar,
	}

	u := newUpdater(t, fetcher)
	res, err := u.Run(context.Background(), Request{Channel: "1.80.0"})
	require.NoError(t, err)
	require.Equal(t, manifestation.Changed, res.Status)
}

func TestRunPinnedVersionChannelMismatchRejected(t *testing.T) {
	rustcTar := distest.Tarball(t, "rustc", hostTarget, "rustc-v1")
	rustcHash := distest.HashOf(rustcTar)
	m := distest.ManifestV2TOML("2026-07-31", hostTarget, false, rustcHash, "")
	mHash := distest.HashOf(m)

	url := manifestV2URL(distRoot, "1.81.0", "")
	fetcher := distest.Fetcher{
		sha256SidecarURL(url): []byte(mHash + "  channel-rust-1.81.0.toml\n"),
		url:                   m,
	}

	u := newUpdater(t, fetcher)
	_, err := u.Run(context.Background(), Request{Channel: "1.81.0"})
	require.Error(t, err)
	var mismatch *VersionChannelMismatchError
	require.True(t, errors.As(err, &mismatch))
}

type v1FallbackFunc func(ctx context.Context, channel, date string, changes manifestation.Changes, force bool) (manifestation.UpdateStatus, error)

func (f v1FallbackFunc) Apply(ctx context.Context, channel, date string, changes manifestation.Changes, force bool) (manifestation.UpdateStatus, error) {
	return f(ctx, channel, date, changes, force)
}
