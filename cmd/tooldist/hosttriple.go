package main

import (
	"fmt"
	"runtime"

	"github.com/toolchain-dist/tooldist/internal/distconfig"
)

// hostTriples maps Go's (GOOS, GOARCH) onto the target triple strings a
// channel manifest's pkg.<P>.target table is keyed by (spec.md §3.1).
// Only the triples this installer ships tarballs for need an entry; an
// unmapped combination is a configuration error the operator resolves
// with TOOLDIST_OVERRIDE_HOST_TRIPLE.
var hostTriples = map[string]map[string]string{
	"linux": {
		"amd64": "x86_64-unknown-linux-gnu",
		"arm64": "aarch64-unknown-linux-gnu",
	},
	"darwin": {
		"amd64": "x86_64-apple-darwin",
		"arm64": "aarch64-apple-darwin",
	},
	"windows": {
		"amd64": "x86_64-pc-windows-msvc",
		"arm64": "aarch64-pc-windows-msvc",
	},
}

// hostTriple returns the operator-forced triple (distconfig.OverrideHostTriple)
// when set, else the triple auto-detected from runtime.GOOS/GOARCH.
func hostTriple() (string, error) {
	if override := distconfig.OverrideHostTriple(); override != "" {
		return override, nil
	}
	byArch, ok := hostTriples[runtime.GOOS]
	if !ok {
		return "", fmt.Errorf("unsupported host OS %q; set %s to override", runtime.GOOS, distconfig.EnvOverrideHostTriple)
	}
	triple, ok := byArch[runtime.GOARCH]
	if !ok {
		return "", fmt.Errorf("unsupported host arch %q for OS %q; set %s to override", runtime.GOARCH, runtime.GOOS, distconfig.EnvOverrideHostTriple)
	}
	return triple, nil
}
