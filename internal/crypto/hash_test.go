package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", ContentHash([]byte("abc")))
	assert.Equal(t, ContentHash([]byte("voice")), ContentHash([]byte("voice")))
	assert.Len(t, ContentHash(nil), 64)
}
