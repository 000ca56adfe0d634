package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retention RetentionConfig `mapstructure:"retention"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	Version         string        `mapstructure:"version"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file, ":memory:" for tests
	URL             string        `mapstructure:"url"`    // postgres connection string
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	if c.Path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return c.Path
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory, redis, none
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type IngestConfig struct {
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	MaxBatch      int           `mapstructure:"max_batch"`
	ExternalDelay time.Duration `mapstructure:"external_delay"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Days     int    `mapstructure:"days"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"` // s3 or memory
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("cache.redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("cache.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.file", "LOG_FILE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/rollcall.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 1)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_size", 64)
	v.SetDefault("ingest.chunk_size", 100)
	v.SetDefault("ingest.max_batch", 1000)
	v.SetDefault("ingest.external_delay", 500*time.Millisecond)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_delay", 60*time.Second)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.schedule", "@daily")
	v.SetDefault("retention.days", 30)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "rollcall-reports")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "reports")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported cache.backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}

	in := c.Ingest
	if in.Workers < 1 || in.QueueSize < 1 {
		return fmt.Errorf("ingest.workers (%d) and ingest.queue_size (%d) must be at least 1", in.Workers, in.QueueSize)
	}
	if in.ChunkSize < 1 {
		return fmt.Errorf("ingest.chunk_size must be at least 1, got %d", in.ChunkSize)
	}
	if in.MaxBatch < 1 {
		return fmt.Errorf("ingest.max_batch must be at least 1, got %d", in.MaxBatch)
	}
	if in.MaxAttempts < 1 {
		return fmt.Errorf("ingest.max_attempts must be at least 1, got %d", in.MaxAttempts)
	}
	if in.ExternalDelay < 0 || in.RetryDelay < 0 {
		return errors.New("ingest delays must not be negative")
	}

	if c.Retention.Enabled && c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be at least 1, got %d", c.Retention.Days)
	}

	if c.Storage.Enabled {
		switch c.Storage.Backend {
		case "s3", "":
			if c.Storage.Bucket == "" {
				return errors.New("storage.bucket is required for the s3 backend")
			}
		case "memory":
		default:
			return fmt.Errorf("unsupported storage.backend %q", c.Storage.Backend)
		}
	}
	return nil
}
