package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, a, SaltSize)
	assert.NotEqual(t, a, b, "соли должны различаться")
}

func TestDeriveFieldKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1, err := DeriveFieldKey("passphrase", salt)
	require.NoError(t, err)
	k2, err := DeriveFieldKey("passphrase", salt)
	require.NoError(t, err)
	k3, err := DeriveFieldKey("other", salt)
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2, "деривация детерминирована")
	assert.NotEqual(t, k1, k3)

	_, err = DeriveFieldKey("", salt)
	assert.ErrorContains(t, err, "passphrase cannot be empty")
	_, err = DeriveFieldKey("passphrase", nil)
	assert.ErrorContains(t, err, "salt cannot be empty")
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.Regexp(t, `^argon2id\$[A-Za-z0-9+/]+\$[A-Za-z0-9+/]+$`, hash)

	other, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "соль делает хеши разными")

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		encoded  string
		wantErr  error
		errMsg   string
	}{
		{name: "match", password: "correct horse", encoded: hash},
		{name: "mismatch", password: "battery staple", encoded: hash, wantErr: ErrPasswordMismatch},
		{name: "bad format", password: "x", encoded: "bcrypt$abc", errMsg: "invalid password hash format"},
		{name: "bad salt", password: "x", encoded: "argon2id$!!$abc", errMsg: "failed to decode salt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.password, tt.encoded)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				assert.ErrorContains(t, err, tt.errMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
