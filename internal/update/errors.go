package update

import "fmt"

// BacktrackExhaustedError is spec.md §4.5 step 4: the backtrack_limit was
// decremented to zero before a manifest with every requested component
// available was found. Err is the first ComponentsMissing error seen.
type BacktrackExhaustedError struct {
	Limit int
	Err   error
}

func (e *BacktrackExhaustedError) Error() string {
	return fmt.Sprintf("backtracking exhausted after %d attempts: %v", e.Limit, e.Err)
}

func (e *BacktrackExhaustedError) Unwrap() error { return e.Err }

// DowngradeRejectedError is spec.md §4.5 step 4: backtracking would need to
// cross the installed toolchain's date (or the fixed epoch) and
// allow_downgrade is false.
type DowngradeRejectedError struct {
	TriedDate string
	Floor     string
	Err       error
}

func (e *DowngradeRejectedError) Error() string {
	return fmt.Sprintf("refusing to backtrack to %s past floor %s without allow_downgrade: %v", e.TriedDate, e.Floor, e.Err)
}

func (e *DowngradeRejectedError) Unwrap() error { return e.Err }

// MissingReleaseForToolchainError is spec.md §4.6: neither a v2 nor a v1
// manifest exists for the requested channel/date.
type MissingReleaseForToolchainError struct {
	Channel string
	Date    string
}

func (e *MissingReleaseForToolchainError) Error() string {
	if e.Date == "" {
		return fmt.Sprintf("no release found for channel %q", e.Channel)
	}
	return fmt.Sprintf("no release found for channel %q on %s", e.Channel, e.Date)
}

// ManifestChecksumRotationError is spec.md §4.5 step 2: the manifest's own
// sha256 sidecar did not match the fetched bytes. This is a non-backtracking,
// non-retriable condition (a server mid-rotation), surfaced with a
// user-facing hint rather than silently tried again.
type ManifestChecksumRotationError struct {
	URL string
	Err error
}

func (e *ManifestChecksumRotationError) Error() string {
	return fmt.Sprintf("manifest checksum mismatch for %s (the server may be mid-rotation, try again shortly): %v", e.URL, e.Err)
}

func (e *ManifestChecksumRotationError) Unwrap() error { return e.Err }

// VersionChannelMismatchError is spec.md §4.5: the channel was a pinned
// Version, but the manifest the dist server served describes a different
// release.
type VersionChannelMismatchError struct {
	Requested string
	Served    string
}

func (e *VersionChannelMismatchError) Error() string {
	return fmt.Sprintf("requested toolchain version %s but dist server served %s", e.Requested, e.Served)
}
