// Package downloadcache implements spec.md §2.5/§4.1: a content-addressed
// cache for downloaded component tarballs, keyed by the expected SHA-256
// hash rather than by URL, with resumable partial downloads.
//
// The cache never performs network I/O itself; callers inject a Fetcher
// (spec.md §1: "only the fetch(url) -> bytes contract is consumed").
package downloadcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/notify"
)

// MaxFetchAttempts is the number of attempts made against a retriable
// TransportError before giving up (spec.md §4.1 step 6).
const MaxFetchAttempts = 3

// Cache is a content-addressed download cache rooted at Dir. Entries are
// named by the caller-supplied expected SHA-256 hash, so two URLs that
// happen to serve identical bytes share one cache entry and a checksum
// mismatch can never be served from cache.
type Cache struct {
	Dir     string
	Handler notify.Handler

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewCache returns a Cache rooted at dir. dir is created lazily on first use.
func NewCache(dir string, handler notify.Handler) *Cache {
	return &Cache{Dir: dir, Handler: handler, locks: make(map[string]*sync.Mutex)}
}

func (c *Cache) notify(e notify.Event) {
	if c.Handler != nil {
		c.Handler.Notify(e)
	}
}

// entryLock returns the mutex serializing access to the cache entry for
// expectedHash, creating it on first use. Two goroutines racing to fetch
// the same hash observe the same cache entry, never a torn .partial file.
func (c *Cache) entryLock(expectedHash string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[expectedHash]
	if !ok {
		l = &sync.Mutex{}
		c.locks[expectedHash] = l
	}
	return l
}

func (c *Cache) paths(expectedHash string) (final, partial, sidecar string) {
	final = filepath.Join(c.Dir, expectedHash)
	partial = final + ".partial"
	sidecar = final + ".partial.hashstate"
	return
}

// Get returns the path to a local file whose contents hash to
// expectedHash, fetching url through fetcher if the file is not already
// cached. expectedHash must be a lowercase hex-encoded SHA-256 digest
// (spec.md §3.3's hash format).
//
// On a cache hit, Get returns immediately without touching the network.
// On a partial previous download, Get resumes from the last verified
// offset if the transport supports byte ranges, and restarts from
// scratch otherwise.
func (c *Cache) Get(ctx context.Context, url, expectedHash string, fetcher Fetcher) (string, error) {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return "", fmt.Errorf("downloadcache: failed to create cache directory: %w", err)
	}

	lock := c.entryLock(expectedHash)
	lock.Lock()
	defer lock.Unlock()

	final, partial, sidecar := c.paths(expectedHash)

	if ok, err := verifyFile(final, expectedHash); err != nil {
		return "", err
	} else if ok {
		c.notify(notify.NewFileAlreadyDownloaded(url, expectedHash))
		return final, nil
	}
	// A stale file at `final` that doesn't match can only mean hash
	// collision bookkeeping went wrong upstream; remove it rather than
	// serve corrupt bytes.
	os.Remove(final)

	offset, h, err := c.resumeState(partial, sidecar, url, expectedHash)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= MaxFetchAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(1<<uint(attempt-2)) * time.Second
			ddlog.Default().Debug("retrying download", "url", url, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		newOffset, newHash, err := c.fetchOnce(ctx, url, offset, h, partial, sidecar, fetcher)
		if err == nil {
			if verr := finalizeDownload(partial, final, sidecar, newHash, expectedHash); verr != nil {
				if errors.Is(verr, errChecksumMismatch) {
					os.Remove(partial)
					os.Remove(sidecar)
					return "", &ChecksumFailedError{URL: url, Expected: expectedHash, Actual: hex.EncodeToString(newHash.Sum(nil))}
				}
				return "", verr
			}
			return final, nil
		}

		var dne *DownloadNotExistsError
		if errors.As(err, &dne) {
			return "", err
		}

		var te *TransportError
		if errors.As(err, &te) && te.Retriable {
			lastErr = err
			offset, h = newOffset, newHash
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("downloadcache: exhausted %d attempts fetching %s: %w", MaxFetchAttempts, url, lastErr)
}

// resumeState inspects an existing .partial file and its hash-state
// sidecar, returning the offset and hash.Hash to resume from. If the
// sidecar is missing, corrupt, or inconsistent with the bytes actually on
// disk, it discards both and starts over from offset 0.
func (c *Cache) resumeState(partial, sidecar, url, expectedHash string) (int64, hash.Hash, error) {
	info, statErr := os.Stat(partial)
	if statErr != nil {
		return 0, sha256.New(), nil
	}

	saved, err := loadHashState(sidecar)
	if err != nil {
		c.notify(notify.NewCachedFileChecksumFailed(url, expectedHash))
		os.Remove(partial)
		os.Remove(sidecar)
		return 0, sha256.New(), nil
	}

	recomputed, err := recomputeHash(partial)
	if err != nil {
		os.Remove(partial)
		os.Remove(sidecar)
		return 0, sha256.New(), nil
	}
	if !hashEqual(saved, recomputed) {
		c.notify(notify.NewCachedFileChecksumFailed(url, expectedHash))
		os.Remove(partial)
		os.Remove(sidecar)
		return 0, sha256.New(), nil
	}

	return info.Size(), recomputed, nil
}

// hashStatePersistInterval bounds how often the sidecar is rewritten
// during a long streaming fetch.
const hashStatePersistInterval = 4 << 20 // 4 MiB

// fetchOnce issues a single fetch attempt starting at offset and appends
// the returned bytes to partial, updating h incrementally. It returns the
// new offset and hash.Hash reached, whether or not it errored, so a
// caller can retry from where this attempt left off.
func (c *Cache) fetchOnce(ctx context.Context, url string, offset int64, h hash.Hash, partial, sidecar string, fetcher Fetcher) (int64, hash.Hash, error) {
	stream, supportsRange, err := fetcher.Fetch(ctx, url, offset)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return offset, h, err
		}
		return offset, h, &TransportError{URL: url, Err: err, Retriable: true}
	}
	defer stream.Close()

	flags := os.O_CREATE | os.O_WRONLY
	writeOffset := offset
	if !supportsRange {
		flags |= os.O_TRUNC
		writeOffset = 0
		h = sha256.New()
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		return offset, h, fmt.Errorf("downloadcache: failed to open partial file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	written := writeOffset
	sinceSave := int64(0)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, h, fmt.Errorf("downloadcache: failed to write partial file: %w", werr)
			}
			h.Write(buf[:n])
			written += int64(n)
			sinceSave += int64(n)
			if sinceSave >= hashStatePersistInterval {
				saveHashState(h, sidecar)
				sinceSave = 0
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			saveHashState(h, sidecar)
			return written, h, &TransportError{URL: url, Err: rerr, Retriable: true}
		}
	}
	if err := saveHashState(h, sidecar); err != nil {
		ddlog.Default().Warn("failed to persist download hash state", "path", sidecar, "error", err)
	}
	return written, h, nil
}

var errChecksumMismatch = errors.New("downloadcache: checksum mismatch")

// finalizeDownload verifies h against expectedHash and, on success,
// atomically renames partial into its final content-addressed location.
func finalizeDownload(partial, final, sidecar string, h hash.Hash, expectedHash string) error {
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expectedHash {
		return errChecksumMismatch
	}
	if err := os.Rename(partial, final); err != nil {
		return fmt.Errorf("downloadcache: failed to finalize download: %w", err)
	}
	os.Remove(sidecar)
	return nil
}

// verifyFile reports whether path exists and its contents hash to
// expectedHash.
func verifyFile(path, expectedHash string) (bool, error) {
	h, err := recomputeHash(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("downloadcache: failed to verify cached file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)) == expectedHash, nil
}

func hashEqual(a, b hash.Hash) bool {
	return hex.EncodeToString(a.Sum(nil)) == hex.EncodeToString(b.Sum(nil))
}

// Sweep scans Dir for cache entries whose filename is not a well-formed
// lowercase hex SHA-256 digest, or for .partial files with no
// corresponding sidecar, and reports them via StrayHash notifications
// without removing anything: callers decide whether to invoke Clear.
func (c *Cache) Sweep() ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("downloadcache: failed to read cache directory: %w", err)
	}

	var stray []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if isHexSHA256(name) {
			continue
		}
		if base, ok := strings.CutSuffix(name, ".partial.hashstate"); ok && isHexSHA256(base) {
			continue
		}
		if base, ok := strings.CutSuffix(name, ".partial"); ok && isHexSHA256(base) {
			if _, err := os.Stat(filepath.Join(c.Dir, name+".hashstate")); err == nil {
				continue
			}
		}
		path := filepath.Join(c.Dir, name)
		stray = append(stray, path)
		c.notify(notify.NewStrayHash(path))
	}
	return stray, nil
}

func isHexSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Clear removes every entry from the cache, including in-progress
// .partial downloads and their sidecars.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("downloadcache: failed to read cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		os.Remove(filepath.Join(c.Dir, entry.Name()))
	}
	return nil
}

// Info summarizes the cache's current on-disk footprint.
type Info struct {
	EntryCount int
	TotalSize  int64
}

// Stat reports Info for the cache, counting only finalized (non-partial)
// entries.
func (c *Cache) Stat() (Info, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, nil
		}
		return Info{}, fmt.Errorf("downloadcache: failed to read cache directory: %w", err)
	}
	var info Info
	for _, entry := range entries {
		if entry.IsDir() || !isHexSHA256(entry.Name()) {
			continue
		}
		info.EntryCount++
		if fi, err := entry.Info(); err == nil {
			info.TotalSize += fi.Size()
		}
	}
	return info, nil
}
