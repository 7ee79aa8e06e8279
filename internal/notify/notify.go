// Package notify defines the notification events the installer core emits
// (spec.md §6.4) and the handler contract that consumes them. Handlers
// must not block - the core calls them synchronously inline with its own
// work, so a slow handler stalls the install.
package notify

// Event is the marker interface implemented by every notification payload.
type Event interface {
	eventName() string
}

// Handler receives notification events. Implementations must return
// quickly; use a buffered channel internally if forwarding to a slow sink.
type Handler interface {
	Notify(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

func (f HandlerFunc) Notify(e Event) { f(e) }

type baseEvent struct{ Name string }

func (b baseEvent) eventName() string { return b.Name }

// DownloadingManifest is emitted before fetching a channel manifest.
type DownloadingManifest struct {
	baseEvent
	URL string
}

// DownloadedManifest is emitted after a channel manifest is fetched and parsed.
type DownloadedManifest struct {
	baseEvent
	Date        string
	RustVersion string
}

// FileAlreadyDownloaded is emitted on a download-cache hit.
type FileAlreadyDownloaded struct {
	baseEvent
	URL  string
	Hash string
}

// CachedFileChecksumFailed is emitted when a stale .partial file fails its
// self-consistency check and is discarded.
type CachedFileChecksumFailed struct {
	baseEvent
	URL  string
	Hash string
}

// ForceSkipping is emitted when force mode skips an unavailable component.
type ForceSkipping struct {
	baseEvent
	Component string
}

// RemovingComponent is emitted before a component's uninstall is applied.
type RemovingComponent struct {
	baseEvent
	Component string
}

// InstallingComponent is emitted before a component's install is applied.
type InstallingComponent struct {
	baseEvent
	Component string
}

// StrayHash is emitted when the download cache sweep finds an orphaned
// cache entry with no corresponding metadata.
type StrayHash struct {
	baseEvent
	Path string
}

// SignatureInvalid is emitted when a detached signature fails to verify.
type SignatureInvalid struct {
	baseEvent
	URL string
}

// RemovingHostTarget is emitted when the reconciliation engine removes the
// host's own std/rustc target, a destructive-enough action to warrant a
// dedicated warning (spec.md §4.4).
type RemovingHostTarget struct {
	baseEvent
	Target string
}

func newEvent(name string) baseEvent { return baseEvent{Name: name} }

func NewDownloadingManifest(url string) DownloadingManifest {
	return DownloadingManifest{baseEvent: newEvent("DownloadingManifest"), URL: url}
}
func NewDownloadedManifest(date, rustVersion string) DownloadedManifest {
	return DownloadedManifest{baseEvent: newEvent("DownloadedManifest"), Date: date, RustVersion: rustVersion}
}
func NewFileAlreadyDownloaded(url, hash string) FileAlreadyDownloaded {
	return FileAlreadyDownloaded{baseEvent: newEvent("FileAlreadyDownloaded"), URL: url, Hash: hash}
}
func NewCachedFileChecksumFailed(url, hash string) CachedFileChecksumFailed {
	return CachedFileChecksumFailed{baseEvent: newEvent("CachedFileChecksumFailed"), URL: url, Hash: hash}
}
func NewForceSkipping(component string) ForceSkipping {
	return ForceSkipping{baseEvent: newEvent("ForceSkipping"), Component: component}
}
func NewRemovingComponent(component string) RemovingComponent {
	return RemovingComponent{baseEvent: newEvent("RemovingComponent"), Component: component}
}
func NewInstallingComponent(component string) InstallingComponent {
	return InstallingComponent{baseEvent: newEvent("InstallingComponent"), Component: component}
}
func NewStrayHash(path string) StrayHash {
	return StrayHash{baseEvent: newEvent("StrayHash"), Path: path}
}
func NewSignatureInvalid(url string) SignatureInvalid {
	return SignatureInvalid{baseEvent: newEvent("SignatureInvalid"), URL: url}
}
func NewRemovingHostTarget(target string) RemovingHostTarget {
	return RemovingHostTarget{baseEvent: newEvent("RemovingHostTarget"), Target: target}
}
