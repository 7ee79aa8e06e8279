package manifest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hex digest of raw, the manifest's own wire
// bytes as fetched. The reconciliation engine compares this against a
// stored value to short-circuit to Unchanged (spec.md §4.4 step 5, §6.3).
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
