package signing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNaClSigner(t *testing.T) {
	t.Run("signatures verify against the same key", func(t *testing.T) {
		signer, err := NewNaClSigner(testSeed())
		require.NoError(t, err)

		payload := "https://tickets.example.org/ticket/abc/42//"
		signature, err := signer.Sign(payload)
		require.NoError(t, err)
		assert.NotEmpty(t, signature)

		assert.True(t, signer.Verify(payload, signature))
		assert.False(t, signer.Verify(payload+"x", signature))
		assert.False(t, signer.Verify(payload, "not-a-signature"))
	})

	t.Run("same seed yields the same key pair", func(t *testing.T) {
		a, err := NewNaClSigner(testSeed())
		require.NoError(t, err)
		b, err := NewNaClSigner(testSeed())
		require.NoError(t, err)

		assert.Equal(t, a.PublicKeyHex(), b.PublicKeyHex())

		signature, err := a.Sign("payload")
		require.NoError(t, err)
		assert.True(t, b.Verify("payload", signature))
	})

	t.Run("rejects short seeds", func(t *testing.T) {
		_, err := NewNaClSigner([]byte("too short"))
		assert.Error(t, err)
	})

	t.Run("derives from hex seed", func(t *testing.T) {
		seedHex := strings.Repeat("ab", SeedSize)
		signer, err := NewNaClSignerFromHex(seedHex)
		require.NoError(t, err)
		assert.NotEmpty(t, signer.PublicKeyHex())

		_, err = NewNaClSignerFromHex("zz")
		assert.Error(t, err)
	})

	t.Run("signature is url safe", func(t *testing.T) {
		signer, err := NewNaClSigner(testSeed())
		require.NoError(t, err)

		signature, err := signer.Sign("payload")
		require.NoError(t, err)
		assert.NotContains(t, signature, "+")
		assert.NotContains(t, signature, "/")
		assert.NotContains(t, signature, "=")
	})
}
