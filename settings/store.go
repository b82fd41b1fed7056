package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissing is returned by a KV for an unknown key.
var ErrMissing = errors.New("settings: key not set")

// KV is the string key/value persistence behind the preference flags.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// preference is one row of the preferences table.
type preference struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"size:255;not null"`
	UpdatedAt time.Time
}

// TableName pins the preferences table name.
func (preference) TableName() string {
	return "preferences"
}

// DBStore keeps preferences in the relational database.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore migrates the preferences table.
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if db == nil {
		return nil, errors.New("settings: database is required")
	}
	if err := db.AutoMigrate(&preference{}); err != nil {
		return nil, fmt.Errorf("settings: migrate: %w", err)
	}
	return &DBStore{db: db}, nil
}

// Get reads one flag, returning ErrMissing when it was never saved.
func (s *DBStore) Get(ctx context.Context, key string) (string, error) {
	var row preference
	if err := s.db.WithContext(ctx).Where(&preference{Name: key}).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrMissing
		}
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	return row.Value, nil
}

// Set upserts one flag.
func (s *DBStore) Set(ctx context.Context, key, value string) error {
	row := preference{Name: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

const redisHashKey = "sketchmagic:preferences"

// RedisStore keeps preferences in a single redis hash.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore keeps the flags under the preferences hash.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get reads one hash field, returning ErrMissing when it is absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.HGet(ctx, redisHashKey, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMissing
		}
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	return value, nil
}

// Set writes one hash field.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, redisHashKey, key, value).Err(); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}
