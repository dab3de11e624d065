// Package artifact persists the trained bot data of a version-language.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nluhub/internal/crypto"
)

// Store turns trained bot data into the value kept in
// repository_version_languages.bot_data and back.
type Store interface {
	Put(ctx context.Context, repo uuid.UUID, versionLanguageID int64, botData string) (string, error)
	Get(ctx context.Context, repo uuid.UUID, ref string) (string, error)
}

const sealedPrefix = "sealed:v1:"

var ErrNoKey = errors.New("artifact: sealed bot data but no master key configured")

// Inline keeps bot data in the row, sealed when a key manager is set.
type Inline struct {
	keys *crypto.KeyManager
}

func NewInline(keys *crypto.KeyManager) *Inline {
	return &Inline{keys: keys}
}

func (s *Inline) Put(ctx context.Context, repo uuid.UUID, versionLanguageID int64, botData string) (string, error) {
	if s.keys == nil || botData == "" {
		return botData, nil
	}
	sealed, err := s.keys.Seal(repo, []byte(botData))
	if err != nil {
		return "", fmt.Errorf("seal bot data: %w", err)
	}
	return sealedPrefix + sealed, nil
}

// Get returns plain values unchanged, so rows written before a key was
// configured stay readable.
func (s *Inline) Get(ctx context.Context, repo uuid.UUID, ref string) (string, error) {
	sealed, ok := strings.CutPrefix(ref, sealedPrefix)
	if !ok {
		return ref, nil
	}
	if s.keys == nil {
		return "", ErrNoKey
	}
	plain, err := s.keys.Open(repo, sealed)
	if err != nil {
		return "", fmt.Errorf("open bot data: %w", err)
	}
	return string(plain), nil
}
