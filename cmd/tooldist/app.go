package main

import (
	"fmt"
	"os"

	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/distconfig"
	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/hint"
	"github.com/toolchain-dist/tooldist/internal/httputil"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/manifestsig"
	"github.com/toolchain-dist/tooldist/internal/notify"
	"github.com/toolchain-dist/tooldist/internal/prefix"
	"github.com/toolchain-dist/tooldist/internal/settings"
	"github.com/toolchain-dist/tooldist/internal/txn"
	"github.com/toolchain-dist/tooldist/internal/update"
	"github.com/toolchain-dist/tooldist/internal/v1fallback"
)

// app bundles the collaborators every subcommand needs to drive one
// toolchain prefix's reconciliation (spec.md §2 data flow).
type app struct {
	paths    *distconfig.Paths
	settings *settings.Settings
	host     string
}

func newApp() *app {
	paths := defaultPaths()
	s, err := settings.Load()
	if err != nil {
		printError(fmt.Errorf("loading settings: %w", err))
		exitWithCode(ExitGeneral)
	}
	host, err := hostTriple()
	if err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
	return &app{paths: paths, settings: s, host: host}
}

// cliHandler renders notification events (spec.md §6.4) as human-readable
// progress lines through ddlog, the way tsuku's own commands log
// operational context at INFO and surfaced warnings at WARN.
type cliHandler struct{}

func (cliHandler) Notify(e notify.Event) {
	log := ddlog.Default()
	switch ev := e.(type) {
	case notify.DownloadingManifest:
		log.Info("fetching manifest", "url", ev.URL)
	case notify.DownloadedManifest:
		log.Info("resolved release", "date", ev.Date, "version", ev.RustVersion)
	case notify.FileAlreadyDownloaded:
		log.Debug("using cached download", "url", ev.URL)
	case notify.CachedFileChecksumFailed:
		log.Warn("discarding stale partial download", "url", ev.URL)
	case notify.ForceSkipping:
		log.Warn("skipping unavailable component", "component", ev.Component)
	case notify.RemovingComponent:
		log.Info("removing component", "component", ev.Component)
	case notify.InstallingComponent:
		log.Info("installing component", "component", ev.Component)
	case notify.StrayHash:
		log.Warn("orphaned download cache entry", "path", ev.Path)
	case notify.SignatureInvalid:
		log.Warn("signature verification failed", "url", ev.URL)
	case notify.RemovingHostTarget:
		log.Warn("removing the active host target", "target", ev.Target)
	}
}

// toolchainInstaller holds the wiring for one named prefix: its Prefix,
// Manifestation, download cache, and the fetcher/v1-fallback/signature
// collaborators an Updater needs.
type toolchainInstaller struct {
	prefix        *prefix.Prefix
	manifestation *manifestation.Manifestation
	cache         *downloadcache.Cache
	fetcher       downloadcache.Fetcher
	updater       *update.Updater
}

func (a *app) installerFor(name string) *toolchainInstaller {
	px := prefix.New(a.paths.ToolchainDir(name))
	handler := cliHandler{}
	cache := downloadcache.NewCache(a.paths.DownloadCacheDir, handler)
	fetcher := httputil.NewHTTPFetcher(httputil.ClientOptions{Timeout: distconfig.GetAPITimeout()})
	m := manifestation.New(px, a.host, txn.OSFsOps{}, handler)

	fb := &v1fallback.Fallback{
		Prefix:     px,
		HostTarget: a.host,
		DistRoot:   distRoot(),
		FS:         txn.OSFsOps{},
		Cache:      cache,
		Fetcher:    fetcher,
		Handler:    handler,
	}

	backtrackLimit := a.settings.BacktrackLimit

	u := &update.Updater{
		Manifestation: m,
		DistRoot:      distRoot(),
		Cache:         cache,
		Fetcher:       fetcher,
		V1Fallback:    fb,
		Signatures: &manifestsig.Verifier{
			Fetcher:     fetcher,
			KeyCacheDir: a.paths.KeyCacheDir,
			Handler:     handler,
		},
		PinnedKeys:     a.settings.PinnedSignatureKeys,
		BacktrackLimit: backtrackLimit,
		Handler:        handler,
	}

	return &toolchainInstaller{prefix: px, manifestation: m, cache: cache, fetcher: fetcher, updater: u}
}

// handleCoreError formats a core error via internal/hint and exits with
// ExitInstallFail whatever the failure class, matching tsuku's
// printError+exitWithCode pattern in its own command files.
func handleCoreError(err error) {
	fmt.Fprintln(os.Stderr, hint.Format(err, nil))
	exitWithCode(ExitInstallFail)
}
