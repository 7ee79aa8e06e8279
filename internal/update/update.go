// Package update implements spec.md §2.10/§4.5: the channel-manifest
// resolution loop that sits above Manifestation — turning a channel name,
// optional pinned date, profile, and requested component/target delta into
// a fetched, validated manifest and a single Manifestation.Update call,
// backtracking across nightly dates when the latest manifest is missing a
// requested component.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/distconfig"
	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/manifestsig"
	"github.com/toolchain-dist/tooldist/internal/notify"
	"github.com/toolchain-dist/tooldist/internal/state"
)

const dateLayout = "2006-01-02"

// V1Fallback is the collaborator invoked when a channel/date combination
// has no v2 manifest (spec.md §4.6). Satisfied by internal/v1fallback.
type V1Fallback interface {
	Apply(ctx context.Context, channel, date string, changes manifestation.Changes, force bool) (manifestation.UpdateStatus, error)
}

// Request describes one resolution attempt (spec.md §4.5 Inputs).
type Request struct {
	// Channel is "stable", "beta", "nightly", or a pinned release version
	// such as "1.80.0" (treated as an opaque channel name against the
	// dist server's URL scheme either way).
	Channel string
	// Date pins the manifest to a specific release date, disabling
	// backtracking. Empty lets nightly resolution backtrack.
	Date string
	// Profile is expanded into default components on first install only.
	Profile string

	ExplicitAddComponents    []manifest.ComponentID
	ExplicitRemoveComponents []manifest.ComponentID

	// AddTargets/RemoveTargets add or remove rust-std for extra
	// cross-compilation targets (SPEC_FULL's restored AddTarget/RemoveTarget
	// operation, grounded on original_source's per-target rust-std handling).
	AddTargets    []string
	RemoveTargets []string

	Force          bool
	AllowDowngrade bool

	// StoredManifestHash is the update-hash sentinel (spec.md §6.3).
	StoredManifestHash string
}

// Result is returned on success.
type Result struct {
	Status       manifestation.UpdateStatus
	ManifestHash string
	Date         string
}

// Updater resolves a Request against a dist server and drives one
// Manifestation.
type Updater struct {
	Manifestation *manifestation.Manifestation
	DistRoot      string
	Cache         *downloadcache.Cache
	Fetcher       downloadcache.Fetcher
	V1Fallback    V1Fallback

	// Signatures, when set, verifies a fetched manifest's detached
	// signature against PinnedKeys before it is handed to Manifestation.
	Signatures *manifestsig.Verifier
	PinnedKeys map[string]string

	// BacktrackLimit overrides distconfig.GetBacktrackLimit when positive;
	// zero or a negative value uses the default.
	BacktrackLimit int
	Handler        notify.Handler
}

func (u *Updater) notify(e notify.Event) {
	if u.Handler != nil {
		u.Handler.Notify(e)
	}
}

// Run executes spec.md §4.5's algorithm.
func (u *Updater) Run(ctx context.Context, req Request) (Result, error) {
	prefetchCtx, cancelPrefetch := context.WithCancel(ctx)
	defer cancelPrefetch()

	firstInstall := u.isFirstInstall()

	targetAdds := make([]manifest.ComponentID, 0, len(req.AddTargets))
	for _, t := range req.AddTargets {
		targetAdds = append(targetAdds, manifest.ComponentID{Pkg: "rust-std", Target: t})
	}
	removeComponents := append([]manifest.ComponentID(nil), req.ExplicitRemoveComponents...)
	for _, t := range req.RemoveTargets {
		removeComponents = append(removeComponents, manifest.ComponentID{Pkg: "rust-std", Target: t})
	}

	backtracking := req.Channel == "nightly" && req.Date == ""
	backtrackLimit := u.BacktrackLimit
	if backtrackLimit <= 0 {
		backtrackLimit = distconfig.GetBacktrackLimit()
	}

	floor := u.backtrackFloor(req.AllowDowngrade)

	trialDate := req.Date
	var firstErr error
	prefetch := newSidecarPrefetcher()

	for {
		url := manifestV2URL(u.DistRoot, req.Channel, trialDate)
		u.notify(notify.NewDownloadingManifest(url))

		var hash string
		var sidecarErr error
		if cached, ok := prefetch.lookup(trialDate); ok {
			hash, sidecarErr = cached.hash, cached.err
		} else {
			hash, sidecarErr = u.fetchSidecarHash(ctx, url)
		}
		if sidecarErr != nil {
			if !isNotExists(sidecarErr) {
				return Result{}, sidecarErr
			}

			status, date, err := u.tryV1(ctx, req.Channel, trialDate, req.ExplicitAddComponents, removeComponents, req.Force)
			if err == nil {
				return Result{Status: status, Date: date}, nil
			}
			var mre *MissingReleaseForToolchainError
			if !errors.As(err, &mre) || !backtracking {
				return Result{}, err
			}

			next, ok := stepBack(trialDate, floor)
			if !ok {
				if firstErr != nil {
					return Result{}, firstErr
				}
				return Result{Status: manifestation.Unchanged}, nil
			}
			trialDate = next
			continue
		}

		archivePath, err := u.Cache.Get(ctx, url, hash, u.Fetcher)
		if err != nil {
			var checksumErr *downloadcache.ChecksumFailedError
			if errors.As(err, &checksumErr) {
				return Result{}, &ManifestChecksumRotationError{URL: url, Err: err}
			}
			return Result{}, fmt.Errorf("update: failed to fetch manifest %s: %w", url, err)
		}

		raw, err := readFile(archivePath)
		if err != nil {
			return Result{}, fmt.Errorf("update: %w", err)
		}

		m, err := manifest.Parse(raw, url)
		if err != nil {
			return Result{}, fmt.Errorf("update: %w", err)
		}
		if u.Signatures != nil {
			if err := u.Signatures.Verify(ctx, url, raw, u.PinnedKeys); err != nil {
				return Result{}, fmt.Errorf("update: %w", err)
			}
		}
		if pinned, ok := pinnedVersion(req.Channel); ok {
			if err := checkPinnedVersion(pinned, m); err != nil {
				return Result{}, err
			}
		}
		u.notify(notify.NewDownloadedManifest(m.Date, rustVersion(m)))

		if backtracking {
			// Warm the next band of candidate dates' sidecar hashes while
			// this date's (potentially slow) install is attempted, so a
			// backtrack step below can skip straight to the manifest fetch.
			go prefetch.warm(prefetchCtx, u, req.Channel, m.Date, floor)
		}

		adds := append([]manifest.ComponentID(nil), req.ExplicitAddComponents...)
		adds = append(adds, targetAdds...)
		if firstInstall && req.Profile != "" {
			adds = append(adds, m.GetProfileComponents(req.Profile, u.Manifestation.HostTarget)...)
		}

		dl := manifestation.DownloadConfig{Cache: u.Cache, Fetcher: u.Fetcher}
		status, err := u.Manifestation.Update(ctx, m, raw, manifestation.Changes{
			ExplicitAddComponents: adds,
			RemoveComponents:      removeComponents,
		}, req.Force, dl, req.Channel, req.StoredManifestHash)

		if err == nil {
			return Result{Status: status, ManifestHash: manifest.Hash(raw), Date: m.Date}, nil
		}

		var missing *manifestation.ComponentsMissingError
		if !errors.As(err, &missing) || !backtracking {
			return Result{}, err
		}

		if firstErr == nil {
			firstErr = err
		}
		ddlog.Default().Info("nightly missing requested components, backtracking", "date", m.Date, "components", missing.Components)

		backtrackLimit--
		if backtrackLimit < 1 {
			return Result{}, &BacktrackExhaustedError{Limit: u.effectiveLimit(), Err: firstErr}
		}

		next, ok := stepBack(m.Date, floor)
		if !ok {
			return Result{}, &DowngradeRejectedError{TriedDate: m.Date, Floor: floor, Err: firstErr}
		}
		trialDate = next
	}
}

func (u *Updater) effectiveLimit() int {
	if u.BacktrackLimit > 0 {
		return u.BacktrackLimit
	}
	return distconfig.GetBacktrackLimit()
}

// isFirstInstall reports whether the Prefix has no installed components
// yet, consulting the installed Config directly (a cheap, already-built
// read; Manifestation.Update re-derives this itself for its own diff).
func (u *Updater) isFirstInstall() bool {
	cfg, err := state.Load(u.Manifestation.Prefix.InstalledConfigPath())
	if err != nil {
		return true
	}
	return len(cfg.Components) == 0
}

// backtrackFloor returns the oldest ISO date backtracking may reach: the
// fixed epoch unless a toolchain is already installed and allow_downgrade
// is false, in which case the installed toolchain's own pinned date is the
// floor (spec.md §4.5 step 4).
func (u *Updater) backtrackFloor(allowDowngrade bool) string {
	if allowDowngrade {
		return distconfig.EpochDate
	}
	installedDate, ok := u.installedManifestDate()
	if !ok {
		return distconfig.EpochDate
	}
	if installedDate < distconfig.EpochDate {
		return distconfig.EpochDate
	}
	return installedDate
}

func (u *Updater) installedManifestDate() (string, bool) {
	raw, err := readFileIfExists(u.Manifestation.Prefix.ManifestConfigPath())
	if err != nil || raw == nil {
		return "", false
	}
	m, err := manifest.Parse(raw, "installed")
	if err != nil {
		return "", false
	}
	return m.Date, true
}

// fetchSidecarHash fetches manifestURL's sibling .sha256 file directly
// (not through the cache: the hash isn't known yet) and extracts the hex
// digest, the first whitespace-delimited token per the conventional
// sha256sum sidecar format.
func (u *Updater) fetchSidecarHash(ctx context.Context, manifestURL string) (string, error) {
	data, err := fetchAll(ctx, u.Fetcher, sha256SidecarURL(manifestURL))
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("update: empty checksum sidecar for %s", manifestURL)
	}
	return fields[0], nil
}

func fetchAll(ctx context.Context, fetcher downloadcache.Fetcher, url string) ([]byte, error) {
	stream, _, err := fetcher.Fetch(ctx, url, 0)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return io.ReadAll(stream)
}

func isNotExists(err error) bool {
	var dne *downloadcache.DownloadNotExistsError
	return errors.As(err, &dne)
}

// tryV1 attempts the v1 fallback path (spec.md §4.6) for one channel/date.
func (u *Updater) tryV1(ctx context.Context, channel, date string, adds, removes []manifest.ComponentID, force bool) (manifestation.UpdateStatus, string, error) {
	if u.V1Fallback == nil {
		return manifestation.Unchanged, date, &MissingReleaseForToolchainError{Channel: channel, Date: date}
	}
	status, err := u.V1Fallback.Apply(ctx, channel, date, manifestation.Changes{
		ExplicitAddComponents: adds,
		RemoveComponents:      removes,
	}, force)
	if err != nil {
		return manifestation.Unchanged, date, err
	}
	return status, date, nil
}

// stepBack decrements date by one calendar day, reporting false if the
// result would precede floor (spec.md §4.5 step 4).
func stepBack(date, floor string) (string, bool) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", false
	}
	prev := d.AddDate(0, 0, -1)
	f, err := time.Parse(dateLayout, floor)
	if err == nil && prev.Before(f) {
		return "", false
	}
	return prev.Format(dateLayout), true
}

func rustVersion(m *manifest.Manifest) string {
	if pkg, ok := m.Packages["rust"]; ok {
		return pkg.Version
	}
	return ""
}

// pinnedVersion parses channel as a semver release (spec.md §4.5: "a
// channel identifier ... OR a Version"). The three named release tracks
// are never version strings, so they short-circuit to ok=false without
// attempting a parse.
func pinnedVersion(channel string) (*semver.Version, bool) {
	switch channel {
	case "stable", "beta", "nightly":
		return nil, false
	}
	v, err := semver.NewVersion(channel)
	if err != nil {
		return nil, false
	}
	return v, true
}

// checkPinnedVersion guards against a dist server serving the wrong
// release for a pinned-version channel (a rename, a proxy misconfiguration,
// or a channel-name typo resolving to an unrelated manifest).
func checkPinnedVersion(pinned *semver.Version, m *manifest.Manifest) error {
	raw := rustVersion(m)
	// Package.Version carries build metadata after the first space, e.g.
	// "1.84.0 (9fc6b4312 2025-01-09)"; only the leading token is a semver.
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return fmt.Errorf("update: manifest has no rust package version")
	}
	served, err := semver.NewVersion(fields[0])
	if err != nil {
		return fmt.Errorf("update: manifest reports unparseable rust version %q: %w", raw, err)
	}
	if !served.Equal(pinned) {
		return &VersionChannelMismatchError{Requested: pinned.Original(), Served: served.Original()}
	}
	return nil
}
