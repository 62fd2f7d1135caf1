package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the working directory
const FileName = "pagecraft"

// EnvPrefix prefixes environment overrides, e.g. PAGECRAFT_SERVER_PORT
const EnvPrefix = "PAGECRAFT"

// Config represents the pagecraft configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metadata  DatabaseConfig  `mapstructure:"metadata"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// PProf mounts the profiling endpoints behind authentication
	PProf bool `mapstructure:"pprof"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig names a database/sql driver and its connection string
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// CacheConfig selects the table row cache backend
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig configures token verification
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	LoginURL  string `mapstructure:"login_url"`
}

// RuntimeConfig configures runtime page rendering
type RuntimeConfig struct {
	Mode string `mapstructure:"mode"`
}

// RateLimitConfig throttles publishes per user; the counters live in redis
// when cache.backend is redis. Zero disables the limit.
type RateLimitConfig struct {
	PublishPerMinute int `mapstructure:"publish_per_minute"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	drivers       = []string{"pgx", "postgres", "sqlite3"}
	cacheBackends = []string{"memory", "redis"}
	runtimeModes  = []string{"dev", "production"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.pprof", false)
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "")
	v.SetDefault("metadata.driver", "")
	v.SetDefault("metadata.url", "")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "pagecraft:")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.login_url", "/login")
	v.SetDefault("runtime.mode", "dev")
	v.SetDefault("ratelimit.publish_per_minute", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads pagecraft.yaml (or the file at path when set), applies
// PAGECRAFT_* environment overrides and validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Metadata.Driver == "" {
		cfg.Metadata.Driver = cfg.Database.Driver
	}
	if cfg.Metadata.URL == "" && cfg.Metadata.Driver == cfg.Database.Driver {
		cfg.Metadata.URL = cfg.Database.URL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if !slices.Contains(drivers, c.Database.Driver) {
		return fmt.Errorf("database.driver must be one of %s, got: %q", strings.Join(drivers, ", "), c.Database.Driver)
	}
	if !slices.Contains(drivers, c.Metadata.Driver) {
		return fmt.Errorf("metadata.driver must be one of %s, got: %q", strings.Join(drivers, ", "), c.Metadata.Driver)
	}
	if c.Database.Driver == "sqlite3" {
		return errors.New("database.driver sqlite3 is only supported for metadata; user tables need postgres")
	}
	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		return fmt.Errorf("cache.backend must be one of %s, got: %q", strings.Join(cacheBackends, ", "), c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", c.Cache.TTL)
	}
	if !slices.Contains(runtimeModes, c.Runtime.Mode) {
		return fmt.Errorf("runtime.mode must be one of %s, got: %q", strings.Join(runtimeModes, ", "), c.Runtime.Mode)
	}
	if c.RateLimit.PublishPerMinute < 0 {
		return fmt.Errorf("ratelimit.publish_per_minute must not be negative, got: %d", c.RateLimit.PublishPerMinute)
	}
	if !strings.HasPrefix(c.Auth.LoginURL, "/") && !strings.Contains(c.Auth.LoginURL, "://") {
		return fmt.Errorf("auth.login_url must be a path or an absolute URL, got: %s", c.Auth.LoginURL)
	}
	return nil
}

// RequireDatabase reports a configuration error when no user database is set
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("database.url is not set (use pagecraft.yaml, PAGECRAFT_DATABASE_URL or DATABASE_URL)")
	}
	if c.Metadata.URL == "" {
		return errors.New("metadata.url is not set")
	}
	return nil
}
