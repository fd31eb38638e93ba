// Package cache stores quick-suggestion results in Redis so repeated runs over
// the same seeds and region do not spend API quota.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// DefaultTTL matches the research default cache_ttl of one day.
const DefaultTTL = 24 * time.Hour

// Observer receives lookup outcomes. observability.Metrics satisfies it.
type Observer interface {
	ObserveCacheLookup(hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveCacheLookup(bool) {}

// SuggestionCache keeps suggestion lists keyed by region and phrase set.
// Each write also records the key in a per-region index so a region can be
// invalidated without scanning the keyspace.
type SuggestionCache struct {
	rdb      redis.UniversalClient
	prefix   string
	ttl      time.Duration
	observer Observer
}

// Option customises a SuggestionCache.
type Option func(*SuggestionCache)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *SuggestionCache) {
		if p := strings.Trim(prefix, ":"); p != "" {
			c.prefix = p
		}
	}
}

// WithTTL sets how long entries live. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(c *SuggestionCache) { c.ttl = d }
}

// WithObserver sets the lookup observer.
func WithObserver(obs Observer) Option {
	return func(c *SuggestionCache) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// New wraps rdb.
func New(rdb redis.UniversalClient, opts ...Option) *SuggestionCache {
	c := &SuggestionCache{
		rdb:      rdb,
		prefix:   "keyhunter",
		ttl:      DefaultTTL,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient builds a Redis client from cfg.
func NewClient(cfg config.CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// FromConfig builds the cache from cfg, using the research cache TTL.
func FromConfig(cfg config.CacheConfig, obs Observer) *SuggestionCache {
	return New(NewClient(cfg), WithPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL), WithObserver(obs))
}

// Key returns the cache key for a phrase set in region.
func (c *SuggestionCache) Key(region int, phrases []string) string {
	return fmt.Sprintf("%s:suggest:%d:%s", c.prefix, region, domain.ComputePhraseSetHash(region, phrases))
}

func (c *SuggestionCache) indexKey(region int) string {
	return c.prefix + ":suggest:index:" + strconv.Itoa(region)
}

// GetSuggestions returns the cached suggestions, reporting whether there was a hit.
func (c *SuggestionCache) GetSuggestions(ctx context.Context, region int, phrases []string) ([]string, bool, error) {
	raw, err := c.rdb.Get(ctx, c.Key(region, phrases)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observer.ObserveCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var suggestions []string
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		c.observer.ObserveCacheLookup(false)
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	c.observer.ObserveCacheLookup(true)
	return suggestions, true, nil
}

// SetSuggestions stores suggestions for the phrase set and indexes the key
// under its region in one round trip.
func (c *SuggestionCache) SetSuggestions(ctx context.Context, region int, phrases, suggestions []string) error {
	if suggestions == nil {
		suggestions = []string{}
	}
	payload, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	key := c.Key(region, phrases)
	idx := c.indexKey(region)

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key, payload, c.ttl)
	pipe.SAdd(ctx, idx, key)
	if c.ttl > 0 {
		pipe.Expire(ctx, idx, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops every cached entry for region and returns how many keys
// were removed.
func (c *SuggestionCache) Invalidate(ctx context.Context, region int) (int64, error) {
	idx := c.indexKey(region)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("cache index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := c.rdb.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache invalidate: %w", err)
	}
	return del.Val(), nil
}

// Ping checks connectivity.
func (c *SuggestionCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *SuggestionCache) Close() error {
	return c.rdb.Close()
}
