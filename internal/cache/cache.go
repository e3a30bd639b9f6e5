// Package cache keeps finished pipeline runs in redis so an identical
// questionnaire is not sent through the models twice.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/metrics"
	"github.com/spigell/crs-roadmap/internal/pipeline"
	"github.com/spigell/crs-roadmap/internal/utils"
)

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "crs-roadmap:run:"

	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password" json:"-"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Runner produces a run record for a questionnaire.
type Runner interface {
	Run(ctx context.Context, questionnaire string) (*pipeline.Record, error)
}

// RunCache stores completed run records keyed by questionnaire and score mode.
type RunCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient opens a client with the timeouts used for short cache calls.
func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func New(client *redis.Client, ttl time.Duration, log *zap.Logger) *RunCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RunCache{client: client, ttl: ttl, logger: logger.WithFields(log)}
}

// Ping checks that redis is reachable.
func (c *RunCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RunCache) Close() error {
	return c.client.Close()
}

// Key derives the cache key for a questionnaire run in the given score mode.
func Key(questionnaire, scoreMode string) string {
	return keyPrefix + utils.Fingerprint(questionnaire, scoreMode)
}

// Get returns the cached record for key. Redis failures and undecodable
// entries are reported as misses.
func (c *RunCache) Get(ctx context.Context, key string) (*pipeline.Record, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RunCacheLookups.WithLabelValues(lookupMiss).Inc()
		} else {
			metrics.RunCacheLookups.WithLabelValues(lookupError).Inc()
			c.logger.Warn("run cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var rec pipeline.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		metrics.RunCacheLookups.WithLabelValues(lookupError).Inc()
		c.logger.Warn("discarding undecodable run cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if rec.NOCCodes == nil {
		rec.NOCCodes = []string{}
	}

	metrics.RunCacheLookups.WithLabelValues(lookupHit).Inc()
	return &rec, true
}

// Set stores a completed record. Incomplete records are refused.
func (c *RunCache) Set(ctx context.Context, key string, rec *pipeline.Record) error {
	if rec == nil || !rec.Complete() {
		return fmt.Errorf("refusing to cache an incomplete run record")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store run record: %w", err)
	}
	return nil
}

// CachedRunner serves runs from the cache and stores fresh results.
type CachedRunner struct {
	next      Runner
	cache     *RunCache
	scoreMode string
	logger    *zap.Logger
}

func NewCachedRunner(next Runner, cache *RunCache, scoreMode string, log *zap.Logger) *CachedRunner {
	return &CachedRunner{next: next, cache: cache, scoreMode: scoreMode, logger: logger.WithFields(log)}
}

func (r *CachedRunner) Run(ctx context.Context, questionnaire string) (*pipeline.Record, error) {
	key := Key(questionnaire, r.scoreMode)
	if rec, ok := r.cache.Get(ctx, key); ok {
		r.logger.Info("serving run from cache", zap.String(logger.FieldRunID, rec.ID))
		return rec, nil
	}

	rec, err := r.next.Run(ctx, questionnaire)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, rec); err != nil {
		r.logger.Warn("failed to cache run", zap.String(logger.FieldRunID, rec.ID), zap.Error(err))
	}
	return rec, nil
}
