package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stockwatch/internal/models"
)

// SummaryCache stores recent summaries by subject.
type SummaryCache interface {
	Get(ctx context.Context, subject string) (*models.NewsSummary, bool, error)
	Set(ctx context.Context, subject string, summary *models.NewsSummary) error
}

const summaryKeyPrefix = "stockwatch:summary:"

// RedisCache is a SummaryCache backed by Redis with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis summary cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func summaryKey(subject string) string {
	return summaryKeyPrefix + strings.ToUpper(strings.TrimSpace(subject))
}

// Get returns a cached summary. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, subject string) (*models.NewsSummary, bool, error) {
	data, err := c.client.Get(ctx, summaryKey(subject)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var s models.NewsSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

// Set stores a summary with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, subject string, summary *models.NewsSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(subject), data, c.ttl).Err()
}

// NopCache never caches.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(context.Context, string) (*models.NewsSummary, bool, error) {
	return nil, false, nil
}

// Set discards the summary.
func (NopCache) Set(context.Context, string, *models.NewsSummary) error {
	return nil
}
