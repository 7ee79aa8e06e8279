// Package v1fallback implements spec.md §4.6: the legacy v1 update path
// used when a channel has no v2 manifest. A v1 "manifest" is just a
// newline-separated list of installer filenames living alongside the
// channel's other files; there is no package/target table, no profiles,
// no renames, and no extensions, so this package reconciles against that
// flat filename list directly instead of going through internal/manifest.
package v1fallback

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/toolchain-dist/tooldist/internal/componentio"
	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/notify"
	"github.com/toolchain-dist/tooldist/internal/prefix"
	"github.com/toolchain-dist/tooldist/internal/state"
	"github.com/toolchain-dist/tooldist/internal/tarball"
	"github.com/toolchain-dist/tooldist/internal/tempctx"
	"github.com/toolchain-dist/tooldist/internal/txn"
)

// defaultComponents is the bundle a first v1 install gets when no
// explicit components were requested; v1 has no profile/required-set
// concept of its own, so this mirrors the historical rustup default.
var defaultComponents = []string{"rustc", "cargo", "rust-std", "rust-docs"}

// Fallback applies spec.md §4.6's update path against one Prefix.
type Fallback struct {
	Prefix     *prefix.Prefix
	HostTarget string
	DistRoot   string
	FS         txn.FsOps
	Cache      *downloadcache.Cache
	Fetcher    downloadcache.Fetcher
	Handler    notify.Handler
}

func (f *Fallback) notify(e notify.Event) {
	if f.Handler != nil {
		f.Handler.Notify(e)
	}
}

// Apply satisfies internal/update.V1Fallback.
func (f *Fallback) Apply(ctx context.Context, channel, date string, changes manifestation.Changes, force bool) (manifestation.UpdateStatus, error) {
	f.notify(notify.NewDownloadingManifest(listingURL(f.DistRoot, channel, date)))

	listing, err := f.fetchListing(ctx, channel, date)
	if err != nil {
		return manifestation.Unchanged, err
	}

	avail := parseListing(listing, channel, f.HostTarget)

	lock, err := f.Prefix.Acquire()
	if err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: failed to acquire prefix lock: %w", err)
	}
	defer lock.Release()

	cfg, err := state.Load(f.Prefix.InstalledConfigPath())
	if err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: failed to load installed config: %w", err)
	}
	installed := cfg.Set()
	firstInstall := len(installed) == 0

	target, err := f.computeTargetSet(avail, changes, installed, firstInstall, force)
	if err != nil {
		return manifestation.Unchanged, err
	}

	var toInstall, toRemove []manifest.ComponentID
	for c := range installed {
		if !target[c] {
			toRemove = append(toRemove, c)
		}
	}
	for c := range target {
		if !installed[c] {
			toInstall = append(toInstall, c)
		}
	}
	sortComponents(toInstall)
	sortComponents(toRemove)

	if len(toInstall) == 0 && len(toRemove) == 0 {
		return manifestation.Unchanged, nil
	}

	tmp, err := tempctx.New("tooldist-v1fallback")
	if err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: %w", err)
	}
	defer tmp.Close()

	tx := txn.New(f.FS, f.Prefix.Root)
	defer tx.Close()

	for _, c := range toRemove {
		f.notify(notify.NewRemovingComponent(c.String()))
		if err := componentio.Uninstall(tx, f.Prefix, c.String()); err != nil {
			return manifestation.Unchanged, fmt.Errorf("v1fallback: %w", err)
		}
	}

	for _, c := range toInstall {
		if err := f.installComponent(ctx, tx, avail, c, channel, date, tmp); err != nil {
			return manifestation.Unchanged, err
		}
	}

	newConfig := state.FromSet(target)
	configBytes, err := newConfig.Bytes()
	if err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: failed to render installed config: %w", err)
	}
	configRel, err := relPath(f.Prefix.Root, f.Prefix.InstalledConfigPath())
	if err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: %w", err)
	}
	if err := tx.ModifyFile(configRel, configBytes, 0644); err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: failed to stage installed config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return manifestation.Unchanged, fmt.Errorf("v1fallback: commit failed: %w", err)
	}

	ddlog.Default().Info("v1 fallback update applied", "channel", channel, "date", date,
		"installed", len(toInstall), "removed", len(toRemove))
	return manifestation.Changed, nil
}

// computeTargetSet mirrors manifestation.computeTargetSet's shape without
// renames or extensions: an installed component survives if it's still
// listed and isn't explicitly removed; explicit adds (and, on a first
// install, the default bundle) are added on top.
func (f *Fallback) computeTargetSet(avail map[string]string, changes manifestation.Changes, installed map[manifest.ComponentID]bool, firstInstall bool, force bool) (map[manifest.ComponentID]bool, error) {
	removeSet := make(map[manifest.ComponentID]bool, len(changes.RemoveComponents))
	for _, r := range changes.RemoveComponents {
		removeSet[r] = true
	}
	addSet := make(map[manifest.ComponentID]bool, len(changes.ExplicitAddComponents))
	for _, a := range changes.ExplicitAddComponents {
		addSet[a] = true
	}

	target := make(map[manifest.ComponentID]bool)

	for c := range installed {
		if removeSet[c] {
			continue
		}
		if _, ok := avail[c.Pkg]; ok {
			target[c] = true
		}
		// Vanished from the listing: dropped silently, same as a v2
		// manifest no longer listing it.
	}

	for c := range removeSet {
		if !installed[c] {
			return nil, &manifestation.NotInstalledError{Component: c}
		}
	}

	if firstInstall {
		for _, pkg := range defaultComponents {
			if _, ok := avail[pkg]; ok {
				target[manifest.ComponentID{Pkg: pkg, Target: f.HostTarget}] = true
			}
		}
	}

	for c := range addSet {
		if _, ok := avail[c.Pkg]; !ok {
			if force {
				continue
			}
			return nil, &manifestation.UnknownComponentError{Component: c}
		}
		target[manifest.ComponentID{Pkg: c.Pkg, Target: f.HostTarget}] = true
	}

	return target, nil
}

func (f *Fallback) installComponent(ctx context.Context, tx *txn.Transaction, avail map[string]string, c manifest.ComponentID, channel, date string, tmp *tempctx.Context) error {
	filename, ok := avail[c.Pkg]
	if !ok {
		return &manifestation.UnknownComponentError{Component: c}
	}

	url := packageURL(f.DistRoot, date, filename)
	f.notify(notify.NewInstallingComponent(c.String()))

	hash, err := f.fetchSidecarHash(ctx, url)
	if err != nil {
		return &manifestation.ComponentDownloadFailedError{Component: c, Err: err}
	}

	archivePath, err := f.Cache.Get(ctx, url, hash, f.Fetcher)
	if err != nil {
		return &manifestation.ComponentDownloadFailedError{Component: c, Err: err}
	}

	format, err := tarball.DetectFormat(filename)
	if err != nil {
		return &manifestation.ExtractionFailedError{RelPath: c.String(), Err: err}
	}

	extractDir, err := tmp.NewDir(c.String())
	if err != nil {
		return fmt.Errorf("v1fallback: %w", err)
	}
	if err := tarball.Extract(archivePath, format, extractDir, 1); err != nil {
		return &manifestation.ExtractionFailedError{RelPath: c.String(), Err: err}
	}

	layout, err := componentio.LoadLayout(extractDir)
	if err != nil {
		return &manifestation.ExtractionFailedError{RelPath: c.String(), Err: err}
	}

	for i, sub := range layout.Components {
		id := c.String()
		if i > 0 {
			id = c.String() + "+" + sub
		}
		if err := componentio.Install(tx, f.Prefix, layout, sub, id); err != nil {
			return fmt.Errorf("v1fallback: %w", err)
		}
	}
	return nil
}

// fetchListing retrieves the v1 channel file: a bare (no-suffix)
// newline-separated list of installer filenames.
func (f *Fallback) fetchListing(ctx context.Context, channel, date string) ([]byte, error) {
	return fetchAll(ctx, f.Fetcher, listingURL(f.DistRoot, channel, date))
}

// fetchSidecarHash fetches an installer's sibling .sha256 file directly.
func (f *Fallback) fetchSidecarHash(ctx context.Context, url string) (string, error) {
	data, err := fetchAll(ctx, f.Fetcher, url+".sha256")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("v1fallback: empty checksum sidecar for %s", url)
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

// parseListing maps each package name found in the listing (for
// channel/hostTarget) to its installer filename. A v1 filename has the
// shape "<pkg>-<channel>-<target>.<ext>"; entries for other targets are
// ignored since this fallback only ever installs for the host target.
func parseListing(data []byte, channel, hostTarget string) map[string]string {
	suffix := "-" + channel + "-" + hostTarget
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		base := line
		for _, ext := range []string{".tar.gz", ".tar.xz", ".tar.zst", ".tar.lz", ".tgz", ".txz"} {
			if strings.HasSuffix(base, ext) {
				base = strings.TrimSuffix(base, ext)
				break
			}
		}
		idx := strings.Index(base, suffix)
		if idx <= 0 {
			continue
		}
		out[base[:idx]] = line
	}
	return out
}

func listingURL(distRoot, channel, date string) string {
	if date == "" {
		return fmt.Sprintf("%s/dist/channel-rust-%s", distRoot, channel)
	}
	return fmt.Sprintf("%s/dist/%s/channel-rust-%s", distRoot, date, channel)
}

func packageURL(distRoot, date, filename string) string {
	if date == "" {
		return fmt.Sprintf("%s/dist/%s", distRoot, filename)
	}
	return fmt.Sprintf("%s/dist/%s/%s", distRoot, date, filename)
}

func relPath(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func sortComponents(cs []manifest.ComponentID) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Pkg != cs[j].Pkg {
			return cs[i].Pkg < cs[j].Pkg
		}
		return cs[i].Target < cs[j].Target
	})
}
