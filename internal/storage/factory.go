package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/internal/storage/implementations/redis"
	"github.com/inferloop/casesynth/internal/storage/implementations/s3"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
)

// CacheConfig selects and configures the model cache.
type CacheConfig struct {
	Enabled   bool               `json:"enabled" mapstructure:"enabled"`
	TTL       time.Duration      `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string             `json:"key_prefix" mapstructure:"key_prefix"`
	Redis     *redis.RedisConfig `json:"redis" mapstructure:"redis"`
}

// Factory builds the optional storage collaborators of a run.
type Factory struct {
	logger *logrus.Logger
}

// NewFactory creates a new storage factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Factory{logger: logger}
}

// CreateModelCache connects the Redis model cache. It returns nil when
// caching is disabled.
func (f *Factory) CreateModelCache(ctx context.Context, config *CacheConfig) (interfaces.ModelCache, error) {
	if config == nil || !config.Enabled {
		f.logger.Debug("Model cache disabled")
		return nil, nil
	}
	if config.Redis == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "cache is enabled but no redis settings were given")
	}

	cache, err := redis.NewModelCache(ctx, config.Redis, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"addr": config.Redis.Addr,
		"ttl":  config.TTL,
	}).Info("Created model cache")
	return cache, nil
}

// CreateUploader builds the S3 uploader. It returns nil when no bucket is
// configured.
func (f *Factory) CreateUploader(config *s3.S3Config) (interfaces.ObjectUploader, error) {
	if config == nil || config.Bucket == "" {
		f.logger.Debug("Output upload disabled")
		return nil, nil
	}

	uploader, err := s3.NewUploader(config, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"bucket": config.Bucket,
		"region": config.Region,
	}).Info("Created output uploader")
	return uploader, nil
}
