package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// defaultMetadataTTL bounds staleness when the config does not set a TTL.
// Entries are also invalidated eagerly on every position mutation, so the
// TTL only matters for tokens mutated outside this process.
const defaultMetadataTTL = 5 * time.Minute

// MetadataCache implements domain.MetadataCache using Redis hashes with
// JSON-serialized metadata.
//
// Key schema:
//
//	position:meta:{tokenID} - hash with field "data" containing JSON
type MetadataCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetadataCache creates a MetadataCache backed by the given Client. A ttl
// of zero or less falls back to the default.
func NewMetadataCache(c *Client, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = defaultMetadataTTL
	}
	return &MetadataCache{rdb: c.Underlying(), ttl: ttl}
}

func metadataKey(tokenID uint64) string {
	return "position:meta:" + strconv.FormatUint(tokenID, 10)
}

// Set stores a token's metadata with the configured TTL.
func (mc *MetadataCache) Set(ctx context.Context, meta domain.PositionMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("redis: marshal metadata %d: %w", meta.TokenID, err)
	}

	key := metadataKey(meta.TokenID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set metadata %d: %w", meta.TokenID, err)
	}
	return nil
}

// Get retrieves a token's metadata.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MetadataCache) Get(ctx context.Context, tokenID uint64) (domain.PositionMetadata, error) {
	data, err := mc.rdb.HGet(ctx, metadataKey(tokenID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PositionMetadata{}, domain.ErrNotFound
		}
		return domain.PositionMetadata{}, fmt.Errorf("redis: get metadata %d: %w", tokenID, err)
	}

	var meta domain.PositionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.PositionMetadata{}, fmt.Errorf("redis: unmarshal metadata %d: %w", tokenID, err)
	}
	return meta, nil
}

// Invalidate removes a token's cached metadata. Removing an absent key is
// not an error.
func (mc *MetadataCache) Invalidate(ctx context.Context, tokenID uint64) error {
	if err := mc.rdb.Del(ctx, metadataKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate metadata %d: %w", tokenID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MetadataCache = (*MetadataCache)(nil)
