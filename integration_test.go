//go:build integration

package main_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/toolchain-dist/tooldist/internal/distest"
)

// TestIntegrationInstallListRemove builds the tooldist binary and drives
// it end-to-end (install with a profile, component list, prefix removal)
// against an httptest server standing in for a dist mirror, the way
// tsuku's own integration suite builds its binary and exercises it as a
// subprocess rather than calling package internals directly.
func TestIntegrationInstallListRemove(t *testing.T) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}

	binPath := buildTooldistBinary(t, projectRoot)
	defer os.Remove(binPath)

	home := t.TempDir()
	const target = "x86_64-unknown-linux-gnu"

	rustcTarball := distest.Tarball(t, "rustc", target, "day-one")
	rustcHash := distest.HashOf(rustcTarball)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	manifestTOML := []byte(`
manifest-version = "2"
date = "2026-01-01"

[profiles]
minimal = ["rustc"]

[pkg.rust]
version = "1.80.0"

[pkg.rust.target.` + target + `]
available = true
url = "` + srv.URL + `/dist/rust.tar.gz"
hash = "` + rustcHash + `"

[[pkg.rust.target.` + target + `.components]]
pkg = "rustc"
target = "` + target + `"

[pkg.rustc]
version = "1.80.0"

[pkg.rustc.target.` + target + `]
available = true
url = "` + srv.URL + `/dist/rustc.tar.gz"
hash = "` + rustcHash + `"
`)
	manifestHash := distest.HashOf(manifestTOML)

	mux.HandleFunc("/dist/channel-rust-nightly.toml", func(w http.ResponseWriter, r *http.Request) {
		w.Write(manifestTOML)
	})
	mux.HandleFunc("/dist/channel-rust-nightly.toml.sha256", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s  channel-rust-nightly.toml\n", manifestHash)
	})
	mux.HandleFunc("/dist/rustc.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(rustcTarball)
	})

	env := append(os.Environ(),
		"TOOLDIST_HOME="+home,
		"TOOLDIST_DIST_ROOT="+srv.URL,
		"TOOLDIST_OVERRIDE_HOST_TRIPLE="+target,
	)

	run := func(args ...string) (string, error) {
		cmd := exec.Command(binPath, args...)
		cmd.Env = env
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		err := cmd.Run()
		return out.String(), err
	}

	if out, err := run("install", "nightly", "--profile", "minimal"); err != nil {
		t.Fatalf("install failed: %v\n%s", err, out)
	}

	rustcBin := filepath.Join(home, "toolchains", "nightly-"+target, "bin", "rustc")
	data, err := os.ReadFile(rustcBin)
	if err != nil {
		t.Fatalf("expected rustc binary at %s: %v", rustcBin, err)
	}
	if string(data) != "day-one" {
		t.Errorf("rustc content = %q, want %q", data, "day-one")
	}

	if out, err := run("component", "list", "nightly-"+target); err != nil {
		t.Fatalf("component list failed: %v\n%s", err, out)
	} else if !bytes.Contains([]byte(out), []byte("rustc")) {
		t.Errorf("expected rustc in component list, got %q", out)
	}

	if out, err := run("remove", "nightly-"+target); err != nil {
		t.Fatalf("remove failed: %v\n%s", err, out)
	}
	if _, err := os.Stat(rustcBin); !os.IsNotExist(err) {
		t.Errorf("expected prefix to be gone after remove, stat err = %v", err)
	}
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find go.mod in any parent directory")
		}
		dir = parent
	}
}

func buildTooldistBinary(t *testing.T, projectRoot string) string {
	t.Helper()
	binName := "tooldist-integration-test"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	binPath := filepath.Join(projectRoot, binName)

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/tooldist")
	cmd.Dir = projectRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, stderr.String())
	}
	return binPath
}
