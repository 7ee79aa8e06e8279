package manifestation

import (
	"fmt"

	"github.com/toolchain-dist/tooldist/internal/manifest"
)

// RemoveRequiredError is spec.md §4.4 step 2: the caller asked to remove
// a component that the new manifest lists as required for host_target.
type RemoveRequiredError struct {
	Component manifest.ComponentID
}

func (e *RemoveRequiredError) Error() string {
	return fmt.Sprintf("cannot remove required component %s", e.Component)
}

// NotInstalledError is spec.md §4.4 step 2: a requested removal is not
// currently installed.
type NotInstalledError struct {
	Component manifest.ComponentID
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("component not installed: %s", e.Component)
}

// AddRemoveConflictError is spec.md §4.4 step 2: the same component was
// requested for both addition and removal.
type AddRemoveConflictError struct {
	Component manifest.ComponentID
}

func (e *AddRemoveConflictError) Error() string {
	return fmt.Sprintf("component %s requested for both add and remove", e.Component)
}

// UnknownComponentError is spec.md §4.4 step 3: an explicit add does not
// resolve to any entry the new manifest lists.
type UnknownComponentError struct {
	Component manifest.ComponentID
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("unknown component: %s", e.Component)
}

// ComponentsMissingError is spec.md §7's AvailabilityErrors.ComponentsMissing:
// one or more explicit adds resolved to an entry with available=false. The
// update loop (§4.5) catches this to drive backtracking.
type ComponentsMissingError struct {
	Components   []manifest.ComponentID
	ManifestDate string
}

func (e *ComponentsMissingError) Error() string {
	return fmt.Sprintf("components missing from manifest dated %s: %v", e.ManifestDate, e.Components)
}

// FileConflictError mirrors txn.FileConflictError at the manifestation
// boundary, surfaced after a rollback (spec.md §4.4 failure semantics).
type FileConflictError struct {
	RelPath string
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("file conflict during install: %s", e.RelPath)
}

// ExtractionFailedError wraps a tarball extraction failure.
type ExtractionFailedError struct {
	RelPath string
	Err     error
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.RelPath, e.Err)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Err }

// ComponentDownloadFailedError wraps a checksum or transport failure
// encountered while fetching a component's tarball.
type ComponentDownloadFailedError struct {
	Component manifest.ComponentID
	Err       error
}

func (e *ComponentDownloadFailedError) Error() string {
	return fmt.Sprintf("download failed for component %s: %v", e.Component, e.Err)
}

func (e *ComponentDownloadFailedError) Unwrap() error { return e.Err }
