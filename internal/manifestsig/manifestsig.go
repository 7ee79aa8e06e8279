// Package manifestsig implements spec.md §1's scope note ("verifying a
// detached signature when provided") and SPEC_FULL's restored policy:
// a channel manifest's sibling `.asc` file, when present, is verified
// against the pinned keys; verification is a non-fatal warning when no
// key is pinned at all, and fatal when keys are pinned but the signature
// verifies against none of them.
package manifestsig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/notify"
)

// MaxKeySize bounds a fetched public key (matches the teacher's own cap).
const MaxKeySize = 100 * 1024

// MaxSignatureSize bounds a fetched detached signature.
const MaxSignatureSize = 10 * 1024

// Verifier checks a manifest's detached signature against a pinned
// fingerprint, fetching the key (once) and caching it under KeyCacheDir.
type Verifier struct {
	Fetcher     downloadcache.Fetcher
	KeyCacheDir string
	Handler     notify.Handler
}

func (v *Verifier) notify(e notify.Event) {
	if v.Handler != nil {
		v.Handler.Notify(e)
	}
}

// Verify fetches manifestURL+".asc"; if absent, verification is skipped
// silently (no signature was offered). If present but pinnedKeys (a
// fingerprint -> key URL map, normally settings.Settings.PinnedSignatureKeys)
// is empty, this installer trusts no key yet, so it's a non-fatal warning
// via the SignatureInvalid notification. If pinnedKeys is non-empty, the
// signature must verify against at least one of them or an error is
// returned.
func (v *Verifier) Verify(ctx context.Context, manifestURL string, manifestBytes []byte, pinnedKeys map[string]string) error {
	sigData, err := v.fetch(ctx, manifestURL+".asc")
	if err != nil {
		if isNotExists(err) {
			return nil
		}
		return fmt.Errorf("manifestsig: failed to fetch signature for %s: %w", manifestURL, err)
	}

	if len(pinnedKeys) == 0 {
		v.notify(notify.NewSignatureInvalid(manifestURL))
		return nil
	}

	var lastErr error
	for fingerprint, keyURL := range pinnedKeys {
		key, err := v.key(ctx, fingerprint, keyURL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := verifyDetached(manifestBytes, sigData, key); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	v.notify(notify.NewSignatureInvalid(manifestURL))
	return fmt.Errorf("manifestsig: signature verification failed for %s against every pinned key: %w", manifestURL, lastErr)
}

func verifyDetached(data, sigData []byte, key *crypto.Key) error {
	signature, err := crypto.NewPGPSignatureFromArmored(string(sigData))
	if err != nil {
		signature = crypto.NewPGPSignature(sigData)
	}
	keyRing, err := crypto.NewKeyRing(key)
	if err != nil {
		return fmt.Errorf("failed to create keyring: %w", err)
	}
	message := crypto.NewPlainMessage(data)
	return keyRing.VerifyDetached(message, signature, 0)
}

// key returns the public key for fingerprint, consulting KeyCacheDir
// before fetching keyURL.
func (v *Verifier) key(ctx context.Context, fingerprint, keyURL string) (*crypto.Key, error) {
	fingerprint = strings.ToUpper(fingerprint)

	if key, err := v.loadCachedKey(fingerprint); err == nil {
		return key, nil
	}

	armored, err := v.fetchBounded(ctx, keyURL, MaxKeySize)
	if err != nil {
		return nil, err
	}
	key, err := crypto.NewKeyFromArmored(string(armored))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}
	keyFingerprint := strings.ToUpper(key.GetFingerprint())
	if keyFingerprint != fingerprint {
		return nil, fmt.Errorf("key fingerprint mismatch: expected %s, got %s", fingerprint, keyFingerprint)
	}

	v.saveCachedKey(fingerprint, armored)
	return key, nil
}

func (v *Verifier) loadCachedKey(fingerprint string) (*crypto.Key, error) {
	if v.KeyCacheDir == "" {
		return nil, fmt.Errorf("manifestsig: no key cache configured")
	}
	data, err := os.ReadFile(filepath.Join(v.KeyCacheDir, fingerprint+".asc"))
	if err != nil {
		return nil, err
	}
	key, err := crypto.NewKeyFromArmored(string(data))
	if err != nil {
		return nil, err
	}
	if strings.ToUpper(key.GetFingerprint()) != fingerprint {
		return nil, fmt.Errorf("cached key fingerprint mismatch")
	}
	return key, nil
}

func (v *Verifier) saveCachedKey(fingerprint string, armored []byte) {
	if v.KeyCacheDir == "" {
		return
	}
	if err := os.MkdirAll(v.KeyCacheDir, 0700); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(v.KeyCacheDir, fingerprint+".asc"), armored, 0600)
}

func (v *Verifier) fetch(ctx context.Context, url string) ([]byte, error) {
	return v.fetchBounded(ctx, url, MaxSignatureSize)
}

func (v *Verifier) fetchBounded(ctx context.Context, url string, limit int64) ([]byte, error) {
	stream, _, err := v.Fetcher.Fetch(ctx, url, 0)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	limited := io.LimitReader(stream, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("manifestsig: response from %s exceeds %d bytes", url, limit)
	}
	return data, nil
}

func isNotExists(err error) bool {
	var dne *downloadcache.DownloadNotExistsError
	return errors.As(err, &dne)
}
