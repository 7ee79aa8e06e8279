package prefix

import (
	"fmt"
	"os"
	"syscall"
)

// Lock is an advisory exclusive lock on a Prefix, held for the duration
// of a Manifestation.Update (spec.md §5).
type Lock struct {
	file *os.File
	path string
}

// Acquire takes a blocking exclusive flock on the Prefix's lock file,
// creating it if necessary.
func (p *Prefix) Acquire() (*Lock, error) {
	path := p.LockPath()
	if err := os.MkdirAll(p.RustlibDir(), 0755); err != nil {
		return nil, fmt.Errorf("prefix: failed to create rustlib directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("prefix: failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("prefix: failed to acquire lock: %w", err)
	}

	return &Lock{file: file, path: path}, nil
}

// Release unlocks and closes the lock file. Idempotent.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("prefix: failed to release lock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("prefix: failed to close lock file: %w", closeErr)
	}
	return nil
}
