package txn

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileConflictError is returned when an AddFile/AddDir target already
// exists and is not owned by the mutation being applied (spec.md §7
// IOErrors: FileConflict{relpath}).
type FileConflictError struct {
	RelPath string
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("file conflict: %s already exists", e.RelPath)
}

// DirNotEmptyError is returned by RemoveDir when the directory contains
// entries that were not part of the recorded removal set. Per spec.md
// §4.4 failure semantics, this is not necessarily fatal: callers may
// choose to keep the directory and warn, treating the extra files as
// user data.
type DirNotEmptyError struct {
	RelPath string
}

func (e *DirNotEmptyError) Error() string {
	return fmt.Sprintf("directory not empty: %s", e.RelPath)
}

type undoStep struct {
	undo func(FsOps) error
}

// Transaction is an ordered list of typed mutations against a prefix root,
// either committed (mutations persist, journal discarded) or rolled back
// (mutations undone in reverse order). An uncommitted Transaction whose
// Close is called rolls back automatically (spec.md §3.5).
type Transaction struct {
	fs         FsOps
	root       string
	mu         sync.Mutex
	log        []undoStep
	committed  bool
	rolledBack bool
}

// New creates an empty Transaction rooted at root (typically a Prefix's
// Root). fsOps is the filesystem capability; pass txn.OSFsOps{} for real
// use, or an in-memory fake for tests.
func New(fsOps FsOps, root string) *Transaction {
	return &Transaction{fs: fsOps, root: root}
}

func (t *Transaction) abs(relpath string) string {
	return filepath.Join(t.root, relpath)
}

func (t *Transaction) push(undo func(FsOps) error) {
	t.log = append(t.log, undoStep{undo: undo})
}

// AddFile writes data at relpath with the given mode. The target must not
// already exist.
func (t *Transaction) AddFile(relpath string, data []byte, mode fs.FileMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.abs(relpath)
	if _, err := t.fs.Stat(target); err == nil {
		return &FileConflictError{RelPath: relpath}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("txn: failed to create parent directory for %s: %w", relpath, err)
	}
	if err := t.fs.WriteFile(target, data, mode); err != nil {
		return fmt.Errorf("txn: failed to write %s: %w", relpath, err)
	}

	t.push(func(fsOps FsOps) error { return fsOps.Remove(target) })
	return nil
}

// CopyFile is AddFile with the bytes of sourceTempPath (e.g. a file
// staged by a tarball extraction). It reads the whole source file into
// memory with os.ReadFile before writing it; it does not stream.
func (t *Transaction) CopyFile(relpath, sourceTempPath string, mode fs.FileMode) error {
	data, err := os.ReadFile(sourceTempPath)
	if err != nil {
		return fmt.Errorf("txn: failed to read source %s: %w", sourceTempPath, err)
	}
	return t.AddFile(relpath, data, mode)
}

// AddDir creates a directory at relpath. The target must not already exist.
func (t *Transaction) AddDir(relpath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.abs(relpath)
	if _, err := t.fs.Stat(target); err == nil {
		return &FileConflictError{RelPath: relpath}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("txn: failed to create parent directory for %s: %w", relpath, err)
	}
	if err := t.fs.Mkdir(target, 0755); err != nil {
		return fmt.Errorf("txn: failed to create directory %s: %w", relpath, err)
	}

	t.push(func(fsOps FsOps) error { return fsOps.Remove(target) })
	return nil
}

// RemoveFile removes relpath, recording its pre-removal bytes and mode
// for rollback. The target must exist.
func (t *Transaction) RemoveFile(relpath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.abs(relpath)
	info, err := t.fs.Stat(target)
	if err != nil {
		return fmt.Errorf("txn: cannot remove %s: %w", relpath, err)
	}
	mode := info.Mode()

	data, err := t.fs.ReadFile(target)
	if err != nil {
		return fmt.Errorf("txn: failed to snapshot %s before removal: %w", relpath, err)
	}

	if err := t.fs.Remove(target); err != nil {
		return fmt.Errorf("txn: failed to remove %s: %w", relpath, err)
	}

	t.push(func(fsOps FsOps) error { return fsOps.WriteFile(target, data, mode) })
	return nil
}

// RemoveDir removes relpath. The target must exist and be empty; if it is
// not empty, DirNotEmptyError is returned without mutating anything, and
// callers should treat the remaining entries as user data (spec.md §4.4).
func (t *Transaction) RemoveDir(relpath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.abs(relpath)
	entries, err := t.fs.ReadDir(target)
	if err != nil {
		return fmt.Errorf("txn: cannot remove directory %s: %w", relpath, err)
	}
	if len(entries) > 0 {
		return &DirNotEmptyError{RelPath: relpath}
	}

	if err := t.fs.Remove(target); err != nil {
		return fmt.Errorf("txn: failed to remove directory %s: %w", relpath, err)
	}

	t.push(func(fsOps FsOps) error { return fsOps.Mkdir(target, 0755) })
	return nil
}

// ModifyFile overwrites relpath with newData/mode, recording the previous
// content for rollback.
func (t *Transaction) ModifyFile(relpath string, newData []byte, mode fs.FileMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.abs(relpath)

	var oldData []byte
	var oldMode fs.FileMode
	existed := false
	if info, err := t.fs.Stat(target); err == nil {
		existed = true
		oldMode = info.Mode()
		data, err := t.fs.ReadFile(target)
		if err != nil {
			return fmt.Errorf("txn: failed to snapshot %s before modification: %w", relpath, err)
		}
		oldData = data
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("txn: failed to create parent directory for %s: %w", relpath, err)
	}
	if err := t.fs.WriteFile(target, newData, mode); err != nil {
		return fmt.Errorf("txn: failed to write %s: %w", relpath, err)
	}

	if existed {
		t.push(func(fsOps FsOps) error { return fsOps.WriteFile(target, oldData, oldMode) })
	} else {
		t.push(func(fsOps FsOps) error { return fsOps.Remove(target) })
	}
	return nil
}

// Commit persists the transaction's mutations: the undo journal is
// discarded and Close becomes a no-op.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = true
	t.log = nil
	return nil
}

// Rollback undoes every mutation recorded so far, in reverse order. It is
// safe to call multiple times.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return nil
	}
	t.rolledBack = true

	var firstErr error
	for i := len(t.log) - 1; i >= 0; i-- {
		if err := t.log[i].undo(t.fs); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("txn: rollback step %d failed: %w", i, err)
		}
	}
	t.log = nil
	return firstErr
}

// Close rolls back the transaction if it was not committed. Intended for
// `defer tx.Close()` immediately after New, so any early return rolls
// back automatically.
func (t *Transaction) Close() error {
	t.mu.Lock()
	committed := t.committed
	rolledBack := t.rolledBack
	t.mu.Unlock()
	if committed || rolledBack {
		return nil
	}
	return t.Rollback()
}
