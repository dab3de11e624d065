package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidMasterKey  = errors.New("invalid master key: must be base64 of 32 bytes")
	ErrDataKeyDerivation = errors.New("failed to derive data key")
)

const dataKeyInfo = "nluhub bot_data v1"

// KeyManager derives one data key per repository from the master key and
// seals trained artifacts with it.
type KeyManager struct {
	masterKey []byte
	// derived data keys per repository
	dataKeys map[uuid.UUID][]byte
	mu       sync.RWMutex
}

// NewKeyManager parses a base64 encoded 32-byte master key.
func NewKeyManager(masterKeyBase64 string) (*KeyManager, error) {
	masterKey, err := base64.StdEncoding.DecodeString(masterKeyBase64)
	if err != nil || len(masterKey) != 32 {
		return nil, ErrInvalidMasterKey
	}

	return &KeyManager{
		masterKey: masterKey,
		dataKeys:  make(map[uuid.UUID][]byte),
	}, nil
}

func (km *KeyManager) dataKey(repo uuid.UUID) ([]byte, error) {
	km.mu.RLock()
	key, ok := km.dataKeys[repo]
	km.mu.RUnlock()
	if ok {
		return key, nil
	}

	key = make([]byte, 32)
	r := hkdf.New(sha256.New, km.masterKey, repo[:], []byte(dataKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, ErrDataKeyDerivation
	}

	km.mu.Lock()
	km.dataKeys[repo] = key
	km.mu.Unlock()
	return key, nil
}

// Seal encrypts an artifact of a repository. The repository id is bound as
// additional data, so versions of one repository can share a sealed blob.
func (km *KeyManager) Seal(repo uuid.UUID, plaintext []byte) (string, error) {
	key, err := km.dataKey(repo)
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, key, repo[:])
}

func (km *KeyManager) Open(repo uuid.UUID, sealed string) ([]byte, error) {
	key, err := km.dataKey(repo)
	if err != nil {
		return nil, err
	}
	return Decrypt(sealed, key, repo[:])
}
