package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/casesynth/internal/storage"
	"github.com/inferloop/casesynth/internal/storage/implementations/redis"
	"github.com/inferloop/casesynth/internal/storage/implementations/s3"
	"github.com/inferloop/casesynth/internal/workflows"
	"github.com/inferloop/casesynth/pkg/constants"
)

type CLIConfig struct {
	DataDir    string              `mapstructure:"data_dir"`
	OutputDir  string              `mapstructure:"output_dir"`
	PrettyJSON bool                `mapstructure:"pretty_json"`
	Generation GenerationConfig    `mapstructure:"generation"`
	Logging    LoggingConfig       `mapstructure:"logging"`
	Cache      storage.CacheConfig `mapstructure:"cache"`
	S3         s3.S3Config         `mapstructure:"s3"`
	Groups     map[string][]int    `mapstructure:"groups"`
}

type GenerationConfig struct {
	PhaseNoiseFraction float64 `mapstructure:"phase_noise_fraction"`
	RepairAttempts     int     `mapstructure:"repair_attempts"`
	RepairDeltaStep    float64 `mapstructure:"repair_delta_step"`
	CorrectionRetries  int     `mapstructure:"correction_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", constants.DefaultOutputDir)
	v.SetDefault("pretty_json", false)
	v.SetDefault("generation.phase_noise_fraction", constants.DefaultPhaseNoiseFraction)
	v.SetDefault("generation.repair_attempts", constants.DefaultRepairAttempts)
	v.SetDefault("generation.repair_delta_step", constants.DefaultRepairDeltaStep)
	v.SetDefault("generation.correction_retries", constants.DefaultCorrectionRetries)
	v.SetDefault("logging.level", constants.DefaultLogLevel)
	v.SetDefault("logging.format", constants.DefaultLogFormat)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", constants.DefaultCacheTTL)
	v.SetDefault("cache.key_prefix", constants.DefaultCacheKeyPrefix)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("s3.region", "us-east-1")
}

// ConfigureViper points v at the config file, or $HOME/.casesynth.yaml, and
// the CASESYNTH_ environment.
func ConfigureViper(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(constants.DefaultConfigName)
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return nil
}

// LoadConfig reads the config file if there is one and decodes v.
func LoadConfig(v *viper.Viper) (*CLIConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &CLIConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if config.Cache.Redis == nil {
		config.Cache.Redis = &redis.RedisConfig{}
	}

	return config, nil
}

// EngineConfig returns the workflow engine settings.
func (c *CLIConfig) EngineConfig() *workflows.EngineConfig {
	return &workflows.EngineConfig{
		OutputDirectory:    c.OutputDir,
		PrettyJSON:         c.PrettyJSON,
		PhaseNoiseFraction: c.Generation.PhaseNoiseFraction,
		RepairAttempts:     c.Generation.RepairAttempts,
		RepairDeltaStep:    c.Generation.RepairDeltaStep,
		CorrectionRetries:  c.Generation.CorrectionRetries,
		CacheTTL:           c.Cache.TTL,
		CacheKeyPrefix:     c.Cache.KeyPrefix,
	}
}

// NewLogger builds the run logger. debug forces the debug level.
func (c *CLIConfig) NewLogger(debug bool) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	switch c.Logging.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}

	return logger, nil
}
