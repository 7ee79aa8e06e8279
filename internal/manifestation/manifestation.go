// Package manifestation implements spec.md §2.9/§4.4: the reconciliation
// engine that diffs a Prefix's installed Config against a target
// manifest, drives downloads/extraction/install/uninstall under a single
// Transaction, and commits or rolls back as one unit.
package manifestation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/toolchain-dist/tooldist/internal/componentio"
	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/notify"
	"github.com/toolchain-dist/tooldist/internal/prefix"
	"github.com/toolchain-dist/tooldist/internal/state"
	"github.com/toolchain-dist/tooldist/internal/tarball"
	"github.com/toolchain-dist/tooldist/internal/tempctx"
	"github.com/toolchain-dist/tooldist/internal/txn"
)

// UpdateStatus is the outcome of a Manifestation.Update call.
type UpdateStatus int

const (
	Unchanged UpdateStatus = iota
	Changed
)

func (s UpdateStatus) String() string {
	if s == Changed {
		return "Changed"
	}
	return "Unchanged"
}

// Changes is the caller's requested delta (spec.md §4.4 Inputs).
type Changes struct {
	ExplicitAddComponents []manifest.ComponentID
	RemoveComponents      []manifest.ComponentID
}

// DownloadConfig bundles the collaborators Update needs to turn a
// component reference into local bytes.
type DownloadConfig struct {
	Cache   *downloadcache.Cache
	Fetcher downloadcache.Fetcher
}

// Manifestation owns one Prefix's reconciliation state.
type Manifestation struct {
	Prefix     *prefix.Prefix
	HostTarget string
	FS         txn.FsOps
	Handler    notify.Handler
}

// New returns a Manifestation for prefix/hostTarget using fsOps (pass
// txn.OSFsOps{} for real filesystem access).
func New(px *prefix.Prefix, hostTarget string, fsOps txn.FsOps, handler notify.Handler) *Manifestation {
	return &Manifestation{Prefix: px, HostTarget: hostTarget, FS: fsOps, Handler: handler}
}

func (m *Manifestation) notify(e notify.Event) {
	if m.Handler != nil {
		m.Handler.Notify(e)
	}
}

// Update reconciles the Prefix against newManifest per changes, applying
// spec.md §4.4's algorithm. manifestDisplayName is used only to label the
// "update applied" log line; rawManifest is the manifest's own wire bytes,
// compared against the stored update-hash sentinel to short-circuit to
// Unchanged when nothing was requested.
func (m *Manifestation) Update(ctx context.Context, newManifest *manifest.Manifest, rawManifest []byte, changes Changes, force bool, dl DownloadConfig, manifestDisplayName string, storedManifestHash string) (UpdateStatus, error) {
	lock, err := m.Prefix.Acquire()
	if err != nil {
		return Unchanged, fmt.Errorf("manifestation: failed to acquire prefix lock: %w", err)
	}
	defer lock.Release()

	cfg, err := state.Load(m.Prefix.InstalledConfigPath())
	if err != nil {
		return Unchanged, fmt.Errorf("manifestation: failed to load installed config: %w", err)
	}
	installed := cfg.Set()
	firstInstall := len(installed) == 0

	if err := m.validateRemovals(newManifest, changes, installed); err != nil {
		return Unchanged, err
	}
	if err := m.validateAdditions(newManifest, changes, force); err != nil {
		return Unchanged, err
	}

	target, uninstallRaw, renameMigrations, err := m.computeTargetSet(newManifest, changes, installed, firstInstall)
	if err != nil {
		return Unchanged, err
	}

	resolvedInstalled := make(map[manifest.ComponentID]bool, len(installed))
	for c := range installed {
		resolvedInstalled[newManifest.RenameComponent(c)] = true
	}

	var toInstall []manifest.ComponentID
	for c := range target {
		if !resolvedInstalled[c] {
			toInstall = append(toInstall, c)
		}
	}
	sortComponents(toInstall)
	sortComponents(uninstallRaw)

	if len(toInstall) == 0 && len(uninstallRaw) == 0 && len(renameMigrations) == 0 &&
		storedManifestHash != "" && storedManifestHash == manifest.Hash(rawManifest) {
		return Unchanged, nil
	}

	tmp, err := tempctx.New("tooldist-update")
	if err != nil {
		return Unchanged, fmt.Errorf("manifestation: failed to create temp context: %w", err)
	}
	defer tmp.Close()

	tx := txn.New(m.FS, m.Prefix.Root)
	defer tx.Close()

	for _, c := range uninstallRaw {
		if (c.Pkg == "rustc" || c.Pkg == "rust-std") && c.Target == m.HostTarget {
			m.notify(notify.NewRemovingHostTarget(c.Target))
		}
		m.notify(notify.NewRemovingComponent(c.String()))
		if err := componentio.Uninstall(tx, m.Prefix, c.String()); err != nil {
			return Unchanged, fmt.Errorf("manifestation: %w", err)
		}
	}

	for _, c := range toInstall {
		if err := m.installComponent(ctx, tx, newManifest, c, force, dl, tmp); err != nil {
			return Unchanged, err
		}
	}

	for _, mig := range renameMigrations {
		if err := m.migrateComponentRecord(tx, mig.from, mig.to); err != nil {
			return Unchanged, fmt.Errorf("manifestation: failed to migrate renamed component record %s -> %s: %w", mig.from, mig.to, err)
		}
	}

	newConfig := state.FromSet(target)
	configBytes, err := newConfig.Bytes()
	if err != nil {
		return Unchanged, fmt.Errorf("manifestation: failed to render installed config: %w", err)
	}
	configRel, err := filepath.Rel(m.Prefix.Root, m.Prefix.InstalledConfigPath())
	if err != nil {
		return Unchanged, fmt.Errorf("manifestation: %w", err)
	}
	if err := tx.ModifyFile(filepath.ToSlash(configRel), configBytes, 0644); err != nil {
		return Unchanged, fmt.Errorf("manifestation: failed to stage installed config: %w", err)
	}

	manifestRel, err := filepath.Rel(m.Prefix.Root, m.Prefix.ManifestConfigPath())
	if err != nil {
		return Unchanged, fmt.Errorf("manifestation: %w", err)
	}
	if err := tx.ModifyFile(filepath.ToSlash(manifestRel), rawManifest, 0644); err != nil {
		return Unchanged, fmt.Errorf("manifestation: failed to stage pinned manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Unchanged, fmt.Errorf("manifestation: commit failed: %w", err)
	}

	ddlog.Default().Info("update applied", "manifest", manifestDisplayName,
		"installed", len(toInstall), "removed", len(uninstallRaw))
	return Changed, nil
}

func (m *Manifestation) validateRemovals(nm *manifest.Manifest, changes Changes, installed map[manifest.ComponentID]bool) error {
	addSet := make(map[manifest.ComponentID]bool, len(changes.ExplicitAddComponents))
	for _, a := range changes.ExplicitAddComponents {
		addSet[nm.RenameComponent(a)] = true
	}

	for _, r := range changes.RemoveComponents {
		resolved := nm.RenameComponent(r)
		if addSet[resolved] {
			return &AddRemoveConflictError{Component: resolved}
		}
		if nm.IsListed(resolved, m.HostTarget) && !nm.IsExtension(resolved, m.HostTarget) {
			return &RemoveRequiredError{Component: resolved}
		}
		found := false
		for c := range installed {
			if nm.RenameComponent(c) == resolved {
				found = true
				break
			}
		}
		if !found {
			return &NotInstalledError{Component: resolved}
		}
	}
	return nil
}

func (m *Manifestation) validateAdditions(nm *manifest.Manifest, changes Changes, force bool) error {
	var missing []manifest.ComponentID
	for _, a := range changes.ExplicitAddComponents {
		resolved := nm.RenameComponent(a)

		crossTargetStd := resolved.Pkg == "rust-std"
		if !crossTargetStd && !nm.IsListed(resolved, m.HostTarget) {
			return &UnknownComponentError{Component: resolved}
		}

		downloadTarget := resolved.Target
		if resolved.IsWildcard() {
			downloadTarget = m.HostTarget
		}
		tp, err := nm.GetTargetedPackage(resolved.Pkg, downloadTarget)
		if err != nil {
			return &UnknownComponentError{Component: resolved}
		}
		if !tp.Available {
			if force {
				continue
			}
			missing = append(missing, resolved)
		}
	}
	if len(missing) > 0 {
		return &ComponentsMissingError{Components: missing, ManifestDate: nm.Date}
	}
	return nil
}

type renameMigration struct {
	from manifest.ComponentID
	to   manifest.ComponentID
}

// computeTargetSet implements spec.md §4.4 step 4. It returns the target
// set (resolved identities), the raw (pre-rename) installed components
// that must be uninstalled, and any rename-only migrations (a preserved
// component whose pkg_name changed and therefore needs its file-list
// record re-keyed without touching installed files).
func (m *Manifestation) computeTargetSet(nm *manifest.Manifest, changes Changes, installed map[manifest.ComponentID]bool, firstInstall bool) (map[manifest.ComponentID]bool, []manifest.ComponentID, []renameMigration, error) {
	removeSet := make(map[manifest.ComponentID]bool, len(changes.RemoveComponents))
	for _, r := range changes.RemoveComponents {
		removeSet[nm.RenameComponent(r)] = true
	}

	target := make(map[manifest.ComponentID]bool)
	var uninstallRaw []manifest.ComponentID
	var migrations []renameMigration

	for raw := range installed {
		resolved := nm.RenameComponent(raw)
		if removeSet[resolved] {
			uninstallRaw = append(uninstallRaw, raw)
			continue
		}
		if nm.IsListed(resolved, m.HostTarget) {
			target[resolved] = true
			if resolved != raw {
				migrations = append(migrations, renameMigration{from: raw, to: resolved})
			}
			continue
		}
		// Vanished: not present in the new manifest and not explicitly
		// added below (adds are folded in afterward and re-checked).
		uninstallRaw = append(uninstallRaw, raw)
	}

	if firstInstall {
		required, err := nm.RequiredComponents(m.HostTarget)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("manifestation: %w", err)
		}
		for _, c := range required {
			target[c] = true
		}
	}

	for _, a := range changes.ExplicitAddComponents {
		resolved := nm.RenameComponent(a)
		target[resolved] = true
		// An explicit add always wins over a vanished-component removal
		// computed above.
		filtered := uninstallRaw[:0]
		for _, u := range uninstallRaw {
			if nm.RenameComponent(u) == resolved {
				continue
			}
			filtered = append(filtered, u)
		}
		uninstallRaw = filtered
	}

	return target, uninstallRaw, migrations, nil
}

func (m *Manifestation) installComponent(ctx context.Context, tx *txn.Transaction, nm *manifest.Manifest, c manifest.ComponentID, force bool, dl DownloadConfig, tmp *tempctx.Context) error {
	downloadTarget := c.Target
	if c.IsWildcard() {
		downloadTarget = m.HostTarget
	}

	tp, err := nm.GetTargetedPackage(c.Pkg, downloadTarget)
	if err != nil {
		return &UnknownComponentError{Component: c}
	}
	if !tp.Available {
		if force {
			m.notify(notify.NewForceSkipping(c.String()))
			return nil
		}
		return &ComponentsMissingError{Components: []manifest.ComponentID{c}, ManifestDate: nm.Date}
	}

	url, hash, kind, ok := tp.BestArchive()
	if !ok {
		return &UnknownComponentError{Component: c}
	}

	m.notify(notify.NewInstallingComponent(c.String()))

	archivePath, err := dl.Cache.Get(ctx, url, hash, dl.Fetcher)
	if err != nil {
		return &ComponentDownloadFailedError{Component: c, Err: err}
	}

	extractDir, err := tmp.NewDir(c.String())
	if err != nil {
		return fmt.Errorf("manifestation: %w", err)
	}
	if err := tarball.Extract(archivePath, tarball.Format(kind), extractDir, 1); err != nil {
		return &ExtractionFailedError{RelPath: c.String(), Err: err}
	}

	layout, err := componentio.LoadLayout(extractDir)
	if err != nil {
		return &ExtractionFailedError{RelPath: c.String(), Err: err}
	}

	// A package's tarball ordinarily contains exactly one subcomponent
	// directory; tarballs bundling more than one (e.g. a combined "rust"
	// package) get a distinct list-record id per subcomponent so none of
	// their file lists overwrite each other.
	for i, sub := range layout.Components {
		id := c.String()
		if i > 0 {
			id = c.String() + "+" + sub
		}
		if err := componentio.Install(tx, m.Prefix, layout, sub, id); err != nil {
			var conflict *txn.FileConflictError
			if errors.As(err, &conflict) {
				return &FileConflictError{RelPath: conflict.RelPath}
			}
			return fmt.Errorf("manifestation: %w", err)
		}
	}
	return nil
}

// migrateComponentRecord re-keys a preserved component's file-list
// record from its old (raw) name to its new (renamed) name, without
// touching any installed file, via RemoveFile+AddFile of the list record
// itself (spec.md §3.5's Transaction has no dedicated Rename mutation).
func (m *Manifestation) migrateComponentRecord(tx *txn.Transaction, from, to manifest.ComponentID) error {
	oldPath := filepath.Join(m.Prefix.ComponentsDir(), from.String()+".list")
	data, err := os.ReadFile(oldPath)
	if err != nil {
		return err
	}
	oldRel, err := filepath.Rel(m.Prefix.Root, oldPath)
	if err != nil {
		return err
	}
	newRel, err := filepath.Rel(m.Prefix.Root, filepath.Join(m.Prefix.ComponentsDir(), to.String()+".list"))
	if err != nil {
		return err
	}
	if err := tx.AddFile(filepath.ToSlash(newRel), data, 0644); err != nil {
		return err
	}
	return tx.RemoveFile(filepath.ToSlash(oldRel))
}

func sortComponents(cs []manifest.ComponentID) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Pkg != cs[j].Pkg {
			return cs[i].Pkg < cs[j].Pkg
		}
		return cs[i].Target < cs[j].Target
	})
}
