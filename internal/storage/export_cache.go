package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smartenergy/aeos/pkg/models"
)

const exportCacheKey = "aeos:profiles:export"

// ExportCache keeps the latest profile export in Redis so report tooling
// can fetch it without hitting the live store. Cache failures are reported
// to the caller but are never fatal to the pipeline.
type ExportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewExportCache connects an export cache to the given Redis instance.
func NewExportCache(addr, password string, db int, ttl time.Duration, logger *zap.Logger) *ExportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &ExportCache{
		client: client,
		ttl:    ttl,
		logger: logger.Sugar().Named("export-cache"),
	}
}

// Put stores the export under the cache key with the configured TTL.
func (c *ExportCache) Put(ctx context.Context, export models.ProfileExport) error {
	payload, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("failed to marshal profile export: %w", err)
	}
	if err := c.client.Set(ctx, exportCacheKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warnw("failed to cache profile export", "error", err)
		return fmt.Errorf("failed to cache profile export: %w", err)
	}
	return nil
}

// Get fetches the cached export. The second return value reports whether a
// cached entry existed.
func (c *ExportCache) Get(ctx context.Context) (models.ProfileExport, bool, error) {
	var export models.ProfileExport

	payload, err := c.client.Get(ctx, exportCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return export, false, nil
	}
	if err != nil {
		return export, false, fmt.Errorf("failed to read cached export: %w", err)
	}
	if err := json.Unmarshal(payload, &export); err != nil {
		return export, false, fmt.Errorf("failed to unmarshal cached export: %w", err)
	}
	return export, true, nil
}

// Close releases the Redis connection.
func (c *ExportCache) Close() error {
	return c.client.Close()
}
