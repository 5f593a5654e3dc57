package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
)

func newTestCipher(t *testing.T, secret string) *TokenCipher {
	t.Helper()
	c, err := NewTokenCipher(config.CryptoConfig{TokenSecret: secret, TokenSalt: "test-salt"})
	require.NoError(t, err)
	return c
}

func TestTokenCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t, "super-secret")

	blob, err := c.Encrypt([]byte(`{"access_token":"abc"}`), []byte("tenant-1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, "v1$"))
	assert.NotContains(t, blob, "access_token")

	plain, err := c.Decrypt(blob, []byte("tenant-1"))
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"abc"}`, string(plain))
}

func TestTokenCipherUsesFreshNonce(t *testing.T) {
	c := newTestCipher(t, "super-secret")

	first, err := c.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	second, err := c.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTokenCipherRejectsWrongOwner(t *testing.T) {
	c := newTestCipher(t, "super-secret")

	blob, err := c.Encrypt([]byte("payload"), []byte("tenant-1"))
	require.NoError(t, err)

	_, err = c.Decrypt(blob, []byte("tenant-2"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestTokenCipherRejectsWrongKey(t *testing.T) {
	blob, err := newTestCipher(t, "one").Encrypt([]byte("payload"), nil)
	require.NoError(t, err)

	_, err = newTestCipher(t, "two").Decrypt(blob, nil)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestTokenCipherRejectsMalformedInput(t *testing.T) {
	c := newTestCipher(t, "super-secret")

	for _, blob := range []string{"", "v2$abc", "v1$%%%", "v1$YWJj"} {
		_, err := c.Decrypt(blob, nil)
		assert.ErrorIs(t, err, ErrMalformedCiphertext, "blob %q", blob)
	}
}

func TestNewTokenCipherRequiresSecret(t *testing.T) {
	_, err := NewTokenCipher(config.CryptoConfig{TokenSecret: "  "})
	require.Error(t, err)
}
