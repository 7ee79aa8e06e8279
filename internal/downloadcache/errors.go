package downloadcache

import "fmt"

// ChecksumFailedError is spec.md §4.1/§7: the bytes retrieved for url did
// not hash to the expected value.
type ChecksumFailedError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumFailedError) Error() string {
	return fmt.Sprintf("checksum failed for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// DownloadNotExistsError is spec.md §4.1/§7: the remote resource does not
// exist (e.g. a 404).
type DownloadNotExistsError struct {
	URL string
}

func (e *DownloadNotExistsError) Error() string {
	return fmt.Sprintf("download does not exist: %s", e.URL)
}

// TransportError wraps an error returned by the injected Fetcher,
// distinguishing retriable transport failures from other errors per
// spec.md §4.1 step 6.
type TransportError struct {
	URL       string
	Err       error
	Retriable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
