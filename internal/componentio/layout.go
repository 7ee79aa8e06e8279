// Package componentio implements spec.md §2.4/§4.2: given an extracted
// rust-installer layout (a top-level directory containing `components`,
// `rust-installer-version`, and per-subcomponent directories each with a
// manifest.in), applies or reverses that directory's manifest.in against
// a Prefix, recording every mutation into a txn.Transaction.
package componentio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SupportedInstallerVersion is the only rust-installer-version this
// installer understands (spec.md §4.2).
const SupportedInstallerVersion = "3"

// Layout describes one extracted component tarball's top-level directory.
type Layout struct {
	Root       string   // the extracted top-level directory
	Components []string // subcomponent directory names, from the "components" file
}

// LoadLayout reads rust-installer-version and components from root and
// validates the installer version.
func LoadLayout(root string) (*Layout, error) {
	versionPath := filepath.Join(root, "rust-installer-version")
	data, err := os.ReadFile(versionPath)
	if err != nil {
		return nil, fmt.Errorf("componentio: failed to read rust-installer-version: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if version != SupportedInstallerVersion {
		return nil, fmt.Errorf("componentio: unsupported rust-installer-version %q (expected %q)", version, SupportedInstallerVersion)
	}

	componentsPath := filepath.Join(root, "components")
	f, err := os.Open(componentsPath)
	if err != nil {
		return nil, fmt.Errorf("componentio: failed to open components file: %w", err)
	}
	defer f.Close()

	var components []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		components = append(components, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("componentio: failed to read components file: %w", err)
	}

	return &Layout{Root: root, Components: components}, nil
}

// SubcomponentDir returns the extracted directory for one named
// subcomponent (must be a member of Layout.Components).
func (l *Layout) SubcomponentDir(name string) string {
	return filepath.Join(l.Root, name)
}
