package manifestsig

import (
	"context"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/stretchr/testify/require"

	"github.com/toolchain-dist/tooldist/internal/distest"
)

func TestVerifySkipsWhenNoSignatureOffered(t *testing.T) {
	fetcher := distest.Fetcher{}
	v := &Verifier{Fetcher: fetcher}
	err := v.Verify(context.Background(), "https://dist.test/channel-rust-stable.toml", []byte("manifest bytes"), nil)
	require.NoError(t, err)
}

func TestVerifyNonFatalWarningWhenNoPinnedKey(t *testing.T) {
	fetcher := distest.Fetcher{
		"https://dist.test/channel-rust-stable.toml.asc": []byte("-----BEGIN PGP SIGNATURE-----\nbogus\n-----END PGP SIGNATURE-----\n"),
	}
	v := &Verifier{Fetcher: fetcher}
	err := v.Verify(context.Background(), "https://dist.test/channel-rust-stable.toml", []byte("manifest bytes"), nil)
	require.NoError(t, err)
}

func TestVerifyRoundTripWithPinnedKey(t *testing.T) {
	manifestBytes := []byte("manifest-version = \"2\"\ndate = \"2026-07-31\"\n")

	key, err := crypto.GenerateKey("tooldist test", "test@example.com", "x25519", 0)
	require.NoError(t, err)

	keyRing, err := crypto.NewKeyRing(key)
	require.NoError(t, err)

	sig, err := keyRing.SignDetached(crypto.NewPlainMessage(manifestBytes))
	require.NoError(t, err)
	armoredSig, err := sig.GetArmored()
	require.NoError(t, err)

	armoredPub, err := key.GetArmoredPublicKey()
	require.NoError(t, err)

	fingerprint := key.GetFingerprint()

	fetcher := distest.Fetcher{
		"https://dist.test/channel-rust-stable.toml.asc": []byte(armoredSig),
		"https://dist.test/keys/" + fingerprint + ".asc": []byte(armoredPub),
	}
	v := &Verifier{Fetcher: fetcher, KeyCacheDir: t.TempDir()}

	err = v.Verify(context.Background(), "https://dist.test/channel-rust-stable.toml", manifestBytes,
		map[string]string{fingerprint: "https://dist.test/keys/" + fingerprint + ".asc"})
	require.NoError(t, err)
}

func TestVerifyFatalWhenPinnedKeyMismatches(t *testing.T) {
	manifestBytes := []byte("manifest-version = \"2\"\ndate = \"2026-07-31\"\n")

	signingKey, err := crypto.GenerateKey("tooldist signer", "signer@example.com", "x25519", 0)
	require.NoError(t, err)
	signingRing, err := crypto.NewKeyRing(signingKey)
	require.NoError(t, err)
	sig, err := signingRing.SignDetached(crypto.NewPlainMessage(manifestBytes))
	require.NoError(t, err)
	armoredSig, err := sig.GetArmored()
	require.NoError(t, err)

	otherKey, err := crypto.GenerateKey("tooldist other", "other@example.com", "x25519", 0)
	require.NoError(t, err)
	armoredOtherPub, err := otherKey.GetArmoredPublicKey()
	require.NoError(t, err)
	otherFingerprint := otherKey.GetFingerprint()

	fetcher := distest.Fetcher{
		"https://dist.test/channel-rust-stable.toml.asc": []byte(armoredSig),
		"https://dist.test/keys/other.asc":                []byte(armoredOtherPub),
	}
	v := &Verifier{Fetcher: fetcher, KeyCacheDir: t.TempDir()}

	err = v.Verify(context.Background(), "https://dist.test/channel-rust-stable.toml", manifestBytes,
		map[string]string{otherFingerprint: "https://dist.test/keys/other.asc"})
	require.Error(t, err)
}
