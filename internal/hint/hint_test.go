package hint

import (
	"errors"
	"strings"
	"testing"

	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/update"
)

func TestFormat_NilError(t *testing.T) {
	result := Format(nil, nil)
	if result != "" {
		t.Errorf("expected empty string for nil error, got %q", result)
	}
}

func TestFormat_GenericError(t *testing.T) {
	err := errors.New("something went wrong")
	result := Format(err, nil)
	if result != "something went wrong" {
		t.Errorf("expected original error message, got %q", result)
	}
}

func TestFormat_BacktrackExhausted(t *testing.T) {
	err := &update.BacktrackExhaustedError{Limit: 21, Err: errors.New("components missing")}
	result := Format(err, &Context{Channel: "nightly"})

	checks := []string{
		"backtracking exhausted",
		"Possible causes:",
		"Suggestions:",
		"--allow-downgrade",
		"nightly channel",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected result to contain %q, got:\n%s", check, result)
		}
	}
}

func TestFormat_ComponentsMissing(t *testing.T) {
	err := &manifestation.ComponentsMissingError{
		Components:   []manifest.ComponentID{{Pkg: "rust-analyzer", Target: "x86_64-unknown-linux-gnu"}},
		ManifestDate: "2026-07-31",
	}
	result := Format(err, nil)

	checks := []string{
		"components missing",
		"Possible causes:",
		"--force",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected result to contain %q, got:\n%s", check, result)
		}
	}
}

func TestFormat_ChecksumRotation(t *testing.T) {
	err := &update.ManifestChecksumRotationError{URL: "https://dist.test/channel-rust-nightly.toml", Err: errors.New("mismatch")}
	result := Format(err, nil)

	if !strings.Contains(result, "mid-rotation") {
		t.Errorf("expected mid-rotation hint, got:\n%s", result)
	}
}

func TestFormat_PermissionError(t *testing.T) {
	err := errors.New("open /opt/tooldist/lib: permission denied")
	result := Format(err, nil)

	checks := []string{"Possible causes:", "permissions", "Suggestions:"}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected result to contain %q, got:\n%s", check, result)
		}
	}
}
