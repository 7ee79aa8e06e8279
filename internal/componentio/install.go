package componentio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/toolchain-dist/tooldist/internal/prefix"
	"github.com/toolchain-dist/tooldist/internal/txn"
)

// recordKind mirrors EntryKind but as it appears in the persisted file
// list used to drive uninstall (spec.md §4.2: "Uninstall of a component
// replays its recorded file list in reverse").
const (
	recordFile = "file"
	recordDir  = "dir"
)

// componentListPath returns where the installed-file record for a
// component is stored under the prefix.
func componentListPath(px *prefix.Prefix, componentID string) string {
	return filepath.Join(px.ComponentsDir(), componentID+".list")
}

// Install applies the manifest.in of subcomponentDir (an extracted
// subcomponent directory inside a Layout) against px, recording every
// AddFile/AddDir into tx. componentID names the persisted file-list
// record used later by Uninstall.
func Install(tx *txn.Transaction, px *prefix.Prefix, layout *Layout, subcomponentName string, componentID string) error {
	found := false
	for _, c := range layout.Components {
		if c == subcomponentName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("componentio: subcomponent %q not listed in components file", subcomponentName)
	}

	subDir := layout.SubcomponentDir(subcomponentName)
	entries, err := ParseManifestIn(filepath.Join(subDir, "manifest.in"))
	if err != nil {
		return err
	}

	var record []string

	for _, entry := range entries {
		switch entry.Kind {
		case EntryFile:
			source := filepath.Join(subDir, entry.RelPath)
			info, err := os.Stat(source)
			if err != nil {
				return fmt.Errorf("componentio: source file missing for manifest.in entry %s: %w", entry.RelPath, err)
			}
			if err := tx.CopyFile(entry.RelPath, source, info.Mode()); err != nil {
				return fmt.Errorf("componentio: failed to install file %s: %w", entry.RelPath, err)
			}
			record = append(record, recordFile+":"+entry.RelPath)

		case EntryDir:
			sourceDir := filepath.Join(subDir, entry.RelPath)

			if _, err := os.Stat(px.Path(entry.RelPath)); os.IsNotExist(err) {
				if err := tx.AddDir(entry.RelPath); err != nil {
					return fmt.Errorf("componentio: failed to install dir %s: %w", entry.RelPath, err)
				}
				record = append(record, recordDir+":"+entry.RelPath)
			}

			err := walkSourceDir(sourceDir,
				func(rel string) error {
					dirRel := filepath.ToSlash(filepath.Join(entry.RelPath, rel))
					if err := tx.AddDir(dirRel); err != nil {
						return err
					}
					record = append(record, recordDir+":"+dirRel)
					return nil
				},
				func(rel, absPath string, mode os.FileMode) error {
					fileRel := filepath.ToSlash(filepath.Join(entry.RelPath, rel))
					if err := tx.CopyFile(fileRel, absPath, mode); err != nil {
						return err
					}
					record = append(record, recordFile+":"+fileRel)
					return nil
				},
			)
			if err != nil {
				return fmt.Errorf("componentio: failed to install dir %s: %w", entry.RelPath, err)
			}
		}
	}

	listPath := componentListPath(px, componentID)
	listRel, err := filepath.Rel(px.Root, listPath)
	if err != nil {
		return fmt.Errorf("componentio: failed to compute component list relpath: %w", err)
	}
	listRel = filepath.ToSlash(listRel)

	if err := tx.AddFile(listRel, []byte(strings.Join(record, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("componentio: failed to record installed file list for %s: %w", componentID, err)
	}

	return nil
}
