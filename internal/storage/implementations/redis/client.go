package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

// RedisConfig holds configuration for the Redis model cache
type RedisConfig struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	Password      string        `json:"password" mapstructure:"password"`
	DB            int           `json:"db" mapstructure:"db"`
	DialTimeout   time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize      int           `json:"pool_size" mapstructure:"pool_size"`
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`
	UseClustering bool          `json:"use_clustering" mapstructure:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// ModelCache stores loaded case-report models in Redis as JSON.
type ModelCache struct {
	config  *RedisConfig
	client  redis.UniversalClient
	logger  *logrus.Logger
	metrics *cacheMetrics
}

type cacheMetrics struct {
	hitCount   int64
	missCount  int64
	writeOps   int64
	errorCount int64
	mu         sync.RWMutex
}

// NewModelCache creates a Redis-backed model cache and verifies the
// connection.
func NewModelCache(ctx context.Context, config *RedisConfig, logger *logrus.Logger) (*ModelCache, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis config cannot be nil")
	}

	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis address or cluster addresses are required")
	}

	var client redis.UniversalClient
	if config.UseClustering && len(config.ClusterAddrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        config.ClusterAddrs,
			Password:     config.Password,
			DialTimeout:  config.DialTimeout,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			PoolSize:     config.PoolSize,
			MaxRetries:   config.MaxRetries,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         config.Addr,
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  config.DialTimeout,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			PoolSize:     config.PoolSize,
			MaxRetries:   config.MaxRetries,
		})
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, "CONNECTION_FAILED", "Failed to connect to Redis")
	}

	cache := NewModelCacheWithClient(client, config, logger)
	cache.logger.WithFields(logrus.Fields{
		"addr":       config.Addr,
		"db":         config.DB,
		"clustering": config.UseClustering,
	}).Info("Connected to Redis")

	return cache, nil
}

// NewModelCacheWithClient wraps an existing client.
func NewModelCacheWithClient(client redis.UniversalClient, config *RedisConfig, logger *logrus.Logger) *ModelCache {
	if config == nil {
		config = &RedisConfig{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ModelCache{
		config:  config,
		client:  client,
		logger:  logger,
		metrics: &cacheMetrics{},
	}
}

// Get returns the cached model for key, or nil on a miss.
func (c *ModelCache) Get(ctx context.Context, key string) (*models.ModelData, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.metrics.inc(&c.metrics.missCount)
		return nil, nil
	}
	if err != nil {
		c.metrics.inc(&c.metrics.errorCount)
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to read cached model")
	}

	var data models.ModelData
	if err := json.Unmarshal(payload, &data); err != nil {
		c.metrics.inc(&c.metrics.errorCount)
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return nil, nil
	}

	c.metrics.inc(&c.metrics.hitCount)
	return &data, nil
}

// Put stores data under key with the given time to live.
func (c *ModelCache) Put(ctx context.Context, key string, data *models.ModelData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to encode model")
	}

	if err := c.client.Set(ctx, key, string(payload), ttl).Err(); err != nil {
		c.metrics.inc(&c.metrics.errorCount)
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to store model")
	}

	c.metrics.inc(&c.metrics.writeOps)
	c.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(payload),
		"ttl":   ttl,
	}).Debug("Stored model in cache")
	return nil
}

// Stats returns hit, miss, write and error counts.
func (c *ModelCache) Stats() map[string]int64 {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()
	return map[string]int64{
		"hits":   c.metrics.hitCount,
		"misses": c.metrics.missCount,
		"writes": c.metrics.writeOps,
		"errors": c.metrics.errorCount,
	}
}

// Close closes the Redis connection
func (c *ModelCache) Close() error {
	return c.client.Close()
}

func (m *cacheMetrics) inc(counter *int64) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}
