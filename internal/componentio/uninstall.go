package componentio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/prefix"
	"github.com/toolchain-dist/tooldist/internal/txn"
)

// Uninstall replays a component's recorded file list in reverse,
// emitting RemoveFile/RemoveDir into tx (spec.md §4.2). A non-empty owned
// directory is left in place with a warning rather than failing the
// transaction, per spec.md §4.4's "extra files are user data" rule.
func Uninstall(tx *txn.Transaction, px *prefix.Prefix, componentID string) error {
	listPath := componentListPath(px, componentID)

	data, err := os.ReadFile(listPath)
	if err != nil {
		return fmt.Errorf("componentio: failed to read installed file list for %s: %w", componentID, err)
	}

	var entries []string
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}

	for i := len(entries) - 1; i >= 0; i-- {
		kind, relpath, ok := strings.Cut(entries[i], ":")
		if !ok {
			return fmt.Errorf("componentio: malformed file-list entry %q for %s", entries[i], componentID)
		}

		switch kind {
		case recordFile:
			if err := tx.RemoveFile(relpath); err != nil {
				return fmt.Errorf("componentio: failed to uninstall file %s: %w", relpath, err)
			}
		case recordDir:
			if err := tx.RemoveDir(relpath); err != nil {
				var notEmpty *txn.DirNotEmptyError
				if errors.As(err, &notEmpty) {
					ddlog.Default().Warn("directory contains files not owned by this component, keeping it",
						"component", componentID, "path", relpath)
					continue
				}
				return fmt.Errorf("componentio: failed to uninstall dir %s: %w", relpath, err)
			}
		default:
			return fmt.Errorf("componentio: unknown file-list entry kind %q for %s", kind, componentID)
		}
	}

	listRel, err := filepath.Rel(px.Root, listPath)
	if err != nil {
		return fmt.Errorf("componentio: failed to compute component list relpath: %w", err)
	}
	listRel = filepath.ToSlash(listRel)
	if err := tx.RemoveFile(listRel); err != nil {
		return fmt.Errorf("componentio: failed to remove installed file list for %s: %w", componentID, err)
	}

	return nil
}
