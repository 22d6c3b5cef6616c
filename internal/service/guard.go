package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quricedev/alice-ai/internal/models"
)

var (
	ErrMissingCredential = errors.New("missing API key")
	ErrInvalidKey        = errors.New("invalid API key")
	ErrExpiredKey        = errors.New("API key expired")
)

// Guard performs per-request authorization against the key store.
type Guard struct {
	keys *KeyService
}

func NewGuard(keys *KeyService) *Guard {
	return &Guard{keys: keys}
}

// Authorize admits or rejects a presented key. Expiry is checked here on
// every access; a stale-but-active record is deactivated in place before
// the rejection is returned. There is no background sweeper, so this
// lazy flip is the only mechanism that retires expired keys. A key that
// already got flipped fails the active lookup and reports ErrInvalidKey.
func (g *Guard) Authorize(ctx context.Context, token string) (*models.Key, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	key, err := g.keys.FindActive(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}
	if key == nil {
		return nil, ErrInvalidKey
	}

	if key.Expired(time.Now().UTC()) {
		if err := g.keys.Deactivate(ctx, token); err != nil {
			return nil, fmt.Errorf("failed to deactivate expired key: %w", err)
		}
		return nil, ErrExpiredKey
	}

	return key, nil
}
