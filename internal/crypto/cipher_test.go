package crypto

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *FieldCipher {
	t.Helper()
	key := make([]byte, KeySize)
	_, _ = rand.Read(key)
	c, err := NewFieldCipher(key)
	require.NoError(t, err)
	return c
}

func TestNewFieldCipher(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr bool
	}{
		{name: "valid key", keyLen: 32},
		{name: "too short", keyLen: 16, wantErr: true},
		{name: "too long", keyLen: 64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFieldCipher(make([]byte, tt.keyLen))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "encryption key must be 32 bytes")
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestFieldCipher_SealOpen(t *testing.T) {
	c := newTestCipher(t)

	for _, plaintext := range []string{"sk-live-123", "", "ключ с юникодом"} {
		sealed, err := c.Seal(plaintext)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sealed, SealedPrefix))
		assert.NotContains(t, sealed, "sk-live")

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestFieldCipher_SealIsRandomized(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Seal("secret")
	require.NoError(t, err)
	b, err := c.Seal("secret")
	require.NoError(t, err)

	// одинаковый plaintext даёт разный шифртекст из-за nonce
	assert.NotEqual(t, a, b)
}

func TestFieldCipher_SealIdempotent(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Seal("secret")
	require.NoError(t, err)
	again, err := c.Seal(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again)
}

func TestFieldCipher_OpenErrors(t *testing.T) {
	c := newTestCipher(t)
	other := newTestCipher(t)

	sealed, err := c.Seal("secret")
	require.NoError(t, err)

	_, err = c.Open("plain")
	assert.ErrorIs(t, err, ErrNotSealed)

	_, err = c.Open(SealedPrefix + "!!!")
	assert.ErrorContains(t, err, "failed to decode base64")

	_, err = c.Open(SealedPrefix + "AAAA")
	assert.ErrorContains(t, err, "encrypted data too short")

	_, err = other.Open(sealed)
	assert.ErrorContains(t, err, "failed to decrypt")
}
