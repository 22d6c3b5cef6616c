package repository

import (
	"context"
	"errors"

	"github.com/quricedev/alice-ai/internal/models"
	"github.com/quricedev/alice-ai/internal/storage"
	"gorm.io/gorm"
)

// ErrDuplicateKey is returned when inserting a record whose key token
// already exists. Callers recover by regenerating the token.
var ErrDuplicateKey = errors.New("duplicate API key")

type KeyRepository struct {
	db *storage.Postgres
}

func NewKeyRepository(db *storage.Postgres) *KeyRepository {
	return &KeyRepository{db: db}
}

func (r *KeyRepository) Create(ctx context.Context, key *models.Key) error {
	err := r.db.DB.WithContext(ctx).Create(key).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}

	return err
}

func (r *KeyRepository) FindByKey(ctx context.Context, token string) (*models.Key, error) {
	var key models.Key
	err := r.db.DB.WithContext(ctx).
		Where("key = ?", token).
		First(&key).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &key, err
}

func (r *KeyRepository) FindByName(ctx context.Context, name string) (*models.Key, error) {
	var key models.Key
	err := r.db.DB.WithContext(ctx).
		Where("name = ?", name).
		First(&key).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &key, err
}

// FindActiveByKey is the authorization-path lookup: only records still
// flagged active are returned.
func (r *KeyRepository) FindActiveByKey(ctx context.Context, token string) (*models.Key, error) {
	var key models.Key
	err := r.db.DB.WithContext(ctx).
		Where("key = ? AND active = ?", token, true).
		First(&key).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &key, err
}

func (r *KeyRepository) FindAllByName(ctx context.Context, name string) ([]models.Key, error) {
	var keys []models.Key
	err := r.db.DB.WithContext(ctx).
		Where("name = ?", name).
		Find(&keys).Error

	return keys, err
}

func (r *KeyRepository) SetActive(ctx context.Context, token string, active bool) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Key{}).
		Where("key = ?", token).
		Update("active", active).Error
}

// IncrementUsage bumps the usage counter by one as a single SQL update.
// Concurrent increments against the same key must not lose updates, so
// this is never done read-modify-write in the application.
func (r *KeyRepository) IncrementUsage(ctx context.Context, token string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Key{}).
		Where("key = ?", token).
		Update("usage", gorm.Expr("usage + 1")).Error
}

func (r *KeyRepository) RevokeByName(ctx context.Context, name string) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Model(&models.Key{}).
		Where("name = ?", name).
		Update("active", false)

	return result.RowsAffected, result.Error
}

// DeleteByKeyOrName removes every record whose key token or owner name
// matches the given token.
func (r *KeyRepository) DeleteByKeyOrName(ctx context.Context, token string) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("key = ? OR name = ?", token, token).
		Delete(&models.Key{})

	return result.RowsAffected, result.Error
}

func (r *KeyRepository) List(ctx context.Context) ([]models.Key, error) {
	var keys []models.Key
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&keys).Error

	return keys, err
}
