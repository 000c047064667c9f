package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
)

const mirrorKeyPrefix = "academic-desk:catalog:"

// CatalogMirrorRepository keeps the last good payload of each remote catalog
// in Redis so a restarted process can serve something while upstream is down.
type CatalogMirrorRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogMirrorRepository constructs the mirror. A nil client disables it.
func NewCatalogMirrorRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CatalogMirrorRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogMirrorRepository{client: client, ttl: ttl, logger: logger}
}

// Enabled reports whether a Redis client is configured.
func (r *CatalogMirrorRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Load reads the mirrored collection for catalog into dest.
func (r *CatalogMirrorRepository) Load(ctx context.Context, catalog string, dest interface{}) error {
	if !r.Enabled() {
		return appErrors.ErrCacheMiss
	}
	key := mirrorKey(catalog)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal mirror value for %s: %w", key, err)
	}
	return nil
}

// Save stores the collection for catalog with the configured TTL.
func (r *CatalogMirrorRepository) Save(ctx context.Context, catalog string, value interface{}) error {
	if !r.Enabled() {
		return nil
	}
	key := mirrorKey(catalog)
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal mirror value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Purge removes every mirrored catalog.
func (r *CatalogMirrorRepository) Purge(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	pattern := mirrorKeyPrefix + "*"
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CatalogMirrorRepository) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}

func mirrorKey(catalog string) string {
	return mirrorKeyPrefix + catalog
}
