// Package tempctx implements spec.md §2.2: scoped acquisition of temporary
// files and directories with guaranteed release, grounded on the teacher's
// Executor.New/Cleanup temp-directory lifecycle.
package tempctx

import (
	"fmt"
	"os"
	"path/filepath"
)

// Context owns a scratch directory for the lifetime of one operation
// (a download-and-extract cycle, a Manifestation.Update run). Closing it
// removes everything created under it.
type Context struct {
	root   string
	closed bool
}

// New creates a fresh temp directory under os.TempDir with the given
// name prefix.
func New(prefix string) (*Context, error) {
	root, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp context: %w", err)
	}
	return &Context{root: root}, nil
}

// Root returns the scratch directory path.
func (c *Context) Root() string { return c.root }

// NewDir creates and returns a fresh subdirectory under the scratch root.
func (c *Context) NewDir(name string) (string, error) {
	dir := filepath.Join(c.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp subdirectory: %w", err)
	}
	return dir, nil
}

// NewFile creates a fresh empty file under the scratch root and returns
// its path, without leaving it open.
func (c *Context) NewFile(name string) (string, error) {
	path := filepath.Join(c.root, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return path, nil
}

// Close releases every file and directory created under this context.
// Idempotent; safe to call multiple times or via defer unconditionally.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return os.RemoveAll(c.root)
}
