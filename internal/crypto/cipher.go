package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// NonceSize - размер nonce для AES-GCM
	NonceSize = 12
	// KeySize - длина ключа AES-256
	KeySize = 32
	// SealedPrefix помечает строку, зашифрованную FieldCipher.
	SealedPrefix = "enc:v1:"
)

// ErrNotSealed is returned by Open for a value without SealedPrefix.
var ErrNotSealed = errors.New("value is not sealed")

// FieldCipher encrypts individual string fields with AES-256-GCM.
// Sealed form: SealedPrefix + base64(nonce + ciphertext + tag).
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher creates a cipher from a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// IsSealed reports whether s carries the sealed prefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, SealedPrefix)
}

// Seal encrypts plaintext. Sealing an already sealed value returns it unchanged.
func (c *FieldCipher) Seal(plaintext string) (string, error) {
	if IsSealed(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce + ciphertext + auth_tag
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func (c *FieldCipher) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrNotSealed
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(raw) < NonceSize {
		return "", fmt.Errorf("encrypted data too short")
	}

	plaintext, err := c.aead.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: authentication failed or corrupted data: %w", err)
	}

	return string(plaintext), nil
}
