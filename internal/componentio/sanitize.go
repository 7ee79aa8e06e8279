package componentio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SanitizeRelPath rejects any RELPATH containing ".." components, an
// absolute path, or a drive letter, per spec.md §4.2.
func SanitizeRelPath(relpath string) error {
	if relpath == "" {
		return fmt.Errorf("componentio: empty relpath")
	}
	if filepath.IsAbs(relpath) {
		return fmt.Errorf("componentio: absolute relpath not allowed: %s", relpath)
	}
	// Reject drive letters (e.g. "C:\foo") even on non-Windows build hosts,
	// since a malicious manifest.in may be crafted for a Windows target.
	if len(relpath) >= 2 && relpath[1] == ':' {
		return fmt.Errorf("componentio: drive-letter relpath not allowed: %s", relpath)
	}
	cleaned := filepath.ToSlash(filepath.Clean(relpath))
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return fmt.Errorf("componentio: relpath escapes installation root: %s", relpath)
		}
	}
	return nil
}
