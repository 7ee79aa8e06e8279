// Package tarball implements spec.md §2.3: a streaming extractor for
// .tar.gz, .tar.xz, .tar.zst (and, for v1-fallback/legacy parity, .tar.lz)
// archives, producing a sequence of (relpath, mode, bytes) entries.
//
// Hardening (path-traversal rejection, symlink-escape validation, atomic
// symlink creation) is ported from the teacher's internal/actions/extract.go.
package tarball

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// Format identifies a supported archive compression.
type Format string

const (
	FormatGzip Format = "gz"
	FormatXz   Format = "xz"
	FormatZstd Format = "zst"
	FormatLzip Format = "lz"
)

// DetectFormat infers a Format from a filename's suffix.
func DetectFormat(filename string) (Format, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatGzip, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatXz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatZstd, nil
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return FormatLzip, nil
	default:
		return "", fmt.Errorf("tarball: cannot detect archive format from filename %q", filename)
	}
}

// EntryKind classifies a tar entry.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
	KindSymlink
)

// Entry describes one archive member as it is visited. Content is only
// valid for the duration of the visitor callback that received it; it
// must be fully consumed (or copied out) before returning.
type Entry struct {
	RelPath    string
	Mode       fs.FileMode
	Kind       EntryKind
	LinkTarget string // valid when Kind == KindSymlink
	Content    io.Reader
}

// VisitFunc is called once per archive entry, in archive order.
type VisitFunc func(Entry) error

// openReader opens archivePath and wraps it with a tar.Reader for the
// given compression format.
func openReader(archivePath string, format Format) (*tar.Reader, func() error, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("tarball: failed to open archive: %w", err)
	}

	closers := []io.Closer{f}
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	var tr *tar.Reader
	switch format {
	case FormatGzip:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("tarball: failed to create gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		tr = tar.NewReader(gzr)
	case FormatXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("tarball: failed to create xz reader: %w", err)
		}
		tr = tar.NewReader(xzr)
	case FormatZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("tarball: failed to create zstd reader: %w", err)
		}
		closers = append(closers, zr.IOReadCloser())
		tr = tar.NewReader(zr)
	case FormatLzip:
		lr, err := lzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("tarball: failed to create lzip reader: %w", err)
		}
		tr = tar.NewReader(lr)
	default:
		f.Close()
		return nil, nil, fmt.Errorf("tarball: unsupported format %q", format)
	}

	return tr, closeAll, nil
}

// Walk streams archivePath (of the given format), invoking fn once per
// entry in archive order. It does not write anything to disk itself;
// callers use Extract for that, or consume Entry.Content directly.
func Walk(archivePath string, format Format, fn VisitFunc) error {
	tr, closeAll, err := openReader(archivePath, format)
	if err != nil {
		return err
	}
	defer closeAll()

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tarball: failed to read entry header: %w", err)
		}

		relPath := strings.TrimPrefix(header.Name, "./")
		if relPath == "" || relPath == "." {
			continue
		}

		entry := Entry{RelPath: relPath, Mode: header.FileInfo().Mode()}

		switch header.Typeflag {
		case tar.TypeDir:
			entry.Kind = KindDir
		case tar.TypeReg:
			entry.Kind = KindFile
			entry.Content = tr
		case tar.TypeSymlink:
			entry.Kind = KindSymlink
			entry.LinkTarget = header.Linkname
		default:
			// Skip unsupported entry types (char/block devices, fifos).
			continue
		}

		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Extract fully unpacks archivePath into destDir, applying the same
// path-traversal and symlink-escape hardening as the teacher's extractor.
// stripDirs strips that many leading path components from every entry,
// mirroring a common "tarball contains one top-level wrapper directory"
// convention.
func Extract(archivePath string, format Format, destDir string, stripDirs int) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("tarball: failed to create destination directory: %w", err)
	}

	return Walk(archivePath, format, func(e Entry) error {
		parts := strings.Split(e.RelPath, "/")
		if len(parts) <= stripDirs {
			return nil
		}
		parts = parts[stripDirs:]
		relative := filepath.Join(parts...)

		target := filepath.Join(destDir, relative)
		if !isPathWithinDirectory(target, destDir) {
			return fmt.Errorf("tarball: archive entry escapes destination directory: %s", e.RelPath)
		}

		switch e.Kind {
		case KindDir:
			return os.MkdirAll(target, 0755)
		case KindFile:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("tarball: failed to create parent directory: %w", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, e.Mode)
			if err != nil {
				return fmt.Errorf("tarball: failed to create file: %w", err)
			}
			if _, err := io.Copy(f, e.Content); err != nil {
				f.Close()
				return fmt.Errorf("tarball: failed to write file: %w", err)
			}
			return f.Close()
		case KindSymlink:
			if err := validateSymlinkTarget(e.LinkTarget, target, destDir); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("tarball: failed to create parent directory: %w", err)
			}
			return atomicSymlink(e.LinkTarget, target)
		}
		return nil
	})
}

// isPathWithinDirectory checks that targetPath is safely contained within
// basePath, preventing archives from writing outside the destination.
func isPathWithinDirectory(targetPath, basePath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	return absTarget == absBase || strings.HasPrefix(absTarget, absBase+string(os.PathSeparator))
}

// validateSymlinkTarget rejects absolute symlink targets and targets that
// would resolve outside destPath.
func validateSymlinkTarget(linkTarget, linkLocation, destPath string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("tarball: absolute symlink targets are not allowed: %s -> %s", linkLocation, linkTarget)
	}

	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !isPathWithinDirectory(resolved, destPath) {
		return fmt.Errorf("tarball: symlink target escapes destination directory: %s -> %s (resolves to %s)",
			linkLocation, linkTarget, resolved)
	}
	return nil
}

// atomicSymlink creates a symlink via a temp-link-then-rename sequence to
// avoid a TOCTOU window where an attacker could replace the target between
// removal and symlink creation.
func atomicSymlink(target, linkPath string) error {
	tmpLink := linkPath + ".tmp"
	os.Remove(tmpLink)

	if err := os.Symlink(target, tmpLink); err != nil {
		return fmt.Errorf("tarball: failed to create symlink: %w", err)
	}
	if err := os.Rename(tmpLink, linkPath); err != nil {
		os.Remove(tmpLink)
		return fmt.Errorf("tarball: failed to finalize symlink: %w", err)
	}
	return nil
}
