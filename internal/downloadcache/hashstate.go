package downloadcache

import (
	"crypto/sha256"
	"encoding"
	"fmt"
	"hash"
	"io"
	"os"
)

// saveHashState persists h's internal state to path, so a future process
// can resume hashing exactly where this one left off. sha256's digest
// type implements encoding.BinaryMarshaler/Unmarshaler for this purpose.
func saveHashState(h hash.Hash, path string) error {
	marshaler, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return fmt.Errorf("downloadcache: hash implementation does not support state serialization")
	}
	data, err := marshaler.MarshalBinary()
	if err != nil {
		return fmt.Errorf("downloadcache: failed to marshal hash state: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// loadHashState restores a sha256 hash.Hash from a sidecar written by
// saveHashState.
func loadHashState(path string) (hash.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	unmarshaler, ok := h.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("downloadcache: hash implementation does not support state deserialization")
	}
	if err := unmarshaler.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("downloadcache: failed to unmarshal hash state: %w", err)
	}
	return h, nil
}

// recomputeHash hashes the full contents of path from scratch. Used to
// validate that a persisted hash-state sidecar is still consistent with
// the bytes actually on disk in the .partial file (spec.md §9 Open
// Question: ".partial is a prefix of the target").
func recomputeHash(path string) (hash.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h, nil
}
