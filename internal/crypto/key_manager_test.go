package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyManager(t *testing.T) *KeyManager {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	km, err := NewKeyManager(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return km
}

func TestNewKeyManagerRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "not base64!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err := NewKeyManager(key)
		assert.ErrorIs(t, err, ErrInvalidMasterKey, key)
	}
}

func TestSealOpen(t *testing.T) {
	km := newTestKeyManager(t)
	repo := uuid.New()

	sealed, err := km.Seal(repo, []byte("model bytes"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "model bytes")

	plain, err := km.Open(repo, sealed)
	require.NoError(t, err)
	assert.Equal(t, "model bytes", string(plain))
}

func TestOpenWithOtherRepositoryFails(t *testing.T) {
	km := newTestKeyManager(t)

	sealed, err := km.Seal(uuid.New(), []byte("model bytes"))
	require.NoError(t, err)

	_, err = km.Open(uuid.New(), sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptShortCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, err = Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")), key, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestEncryptInvalidKeySize(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("short"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
