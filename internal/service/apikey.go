package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quricedev/alice-ai/internal/models"
	"github.com/quricedev/alice-ai/internal/repository"
)

const (
	keyTokenBytes    = 24
	keyTokenPrefix   = "alice_"
	maxTokenAttempts = 5
	keyCacheTTL      = 5 * time.Minute
)

// ErrTokenGenerationExhausted is returned when every generation attempt
// collided with an existing key. In practice this never happens.
var ErrTokenGenerationExhausted = errors.New("exhausted API key generation attempts")

// KeyStore is the durable key record store. *repository.KeyRepository
// satisfies it; tests substitute an in-memory fake.
type KeyStore interface {
	Create(ctx context.Context, key *models.Key) error
	FindByKey(ctx context.Context, token string) (*models.Key, error)
	FindByName(ctx context.Context, name string) (*models.Key, error)
	FindActiveByKey(ctx context.Context, token string) (*models.Key, error)
	FindAllByName(ctx context.Context, name string) ([]models.Key, error)
	SetActive(ctx context.Context, token string, active bool) error
	IncrementUsage(ctx context.Context, token string) error
	RevokeByName(ctx context.Context, name string) (int64, error)
	DeleteByKeyOrName(ctx context.Context, token string) (int64, error)
	List(ctx context.Context) ([]models.Key, error)
}

// Cache holds authorized key records on the hot path. A nil Cache
// disables caching entirely.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type KeyService struct {
	store KeyStore
	cache Cache
}

func NewKeyService(store KeyStore, cache Cache) *KeyService {
	return &KeyService{
		store: store,
		cache: cache,
	}
}

// GenerateToken produces a URL-safe bearer credential from 24 bytes of
// cryptographic randomness.
func (s *KeyService) GenerateToken() (string, error) {
	buf := make([]byte, keyTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	return keyTokenPrefix + base64.URLEncoding.EncodeToString(buf), nil
}

// Create mints a key for name valid for lifetimeDays. Token collisions
// are recovered by regenerating, bounded by maxTokenAttempts.
func (s *KeyService) Create(ctx context.Context, name string, lifetimeDays int) (*models.Key, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := s.GenerateToken()
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		key := &models.Key{
			Key:       token,
			Name:      name,
			Active:    true,
			Usage:     0,
			CreatedAt: now,
			ExpiresAt: now.AddDate(0, 0, lifetimeDays),
		}

		err = s.store.Create(ctx, key)
		if errors.Is(err, repository.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create API key: %w", err)
		}

		return key, nil
	}

	return nil, ErrTokenGenerationExhausted
}

// FindActive looks up an active key record, consulting the cache first.
// Revocation, rotation and deletion invalidate cached entries, so a
// cached record is never fresher than the last lifecycle change.
func (s *KeyService) FindActive(ctx context.Context, token string) (*models.Key, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey(token)); err == nil && cached != "" {
			var key models.Key
			if err := json.Unmarshal([]byte(cached), &key); err == nil {
				return &key, nil
			}
		}
	}

	key, err := s.store.FindActiveByKey(ctx, token)
	if err != nil || key == nil {
		return key, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(key); err == nil {
			s.cache.Set(ctx, cacheKey(token), data, keyCacheTTL)
		}
	}

	return key, nil
}

// Deactivate flips a key inactive. The flip is one-way; nothing ever
// reactivates a key.
func (s *KeyService) Deactivate(ctx context.Context, token string) error {
	if err := s.store.SetActive(ctx, token, false); err != nil {
		return err
	}
	s.invalidate(ctx, token)

	return nil
}

func (s *KeyService) IncrementUsage(ctx context.Context, token string) error {
	return s.store.IncrementUsage(ctx, token)
}

// RevokeByName deactivates every key owned by name and returns the
// number of affected records.
func (s *KeyService) RevokeByName(ctx context.Context, name string) (int64, error) {
	keys, err := s.store.FindAllByName(ctx, name)
	if err != nil {
		return 0, err
	}

	count, err := s.store.RevokeByName(ctx, name)
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		s.invalidate(ctx, key.Key)
	}

	return count, nil
}

// Rotate revokes every existing key for name and issues a fresh one.
// Usage history stays with the revoked keys.
func (s *KeyService) Rotate(ctx context.Context, name string, lifetimeDays int) (*models.Key, error) {
	if _, err := s.RevokeByName(ctx, name); err != nil {
		return nil, err
	}

	return s.Create(ctx, name, lifetimeDays)
}

// DeleteByKeyOrName removes every record matching token as either a key
// or an owner name. Deletion is terminal; usage history is lost.
func (s *KeyService) DeleteByKeyOrName(ctx context.Context, token string) (int64, error) {
	keys, err := s.store.FindAllByName(ctx, token)
	if err != nil {
		return 0, err
	}

	count, err := s.store.DeleteByKeyOrName(ctx, token)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, token)
	for _, key := range keys {
		s.invalidate(ctx, key.Key)
	}

	return count, nil
}

// GetUsage resolves token as a key first, then as an owner name.
// Returns nil when neither matches.
func (s *KeyService) GetUsage(ctx context.Context, token string) (*models.Key, error) {
	key, err := s.store.FindByKey(ctx, token)
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}

	return s.store.FindByName(ctx, token)
}

func (s *KeyService) List(ctx context.Context) ([]models.Key, error) {
	return s.store.List(ctx)
}

func (s *KeyService) invalidate(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(ctx, cacheKey(token))
}

func cacheKey(token string) string {
	return fmt.Sprintf("apikey:cache:%s", token)
}
