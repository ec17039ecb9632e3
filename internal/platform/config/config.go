// Package config loads service configuration from defaults, an optional YAML
// file and TASKDESK_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TASKDESK"

// Config is the full service configuration.
type Config struct {
	Server    Server          `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Session   SessionConfig   `mapstructure:"session"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `mapstructure:"addr"`
	Environment       string        `mapstructure:"environment"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken guards the operations endpoints. Empty disables them.
	AdminToken string `mapstructure:"admin_token"`
}

// DatabaseConfig selects Postgres. An empty URL runs on the in-memory stores.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// RedisConfig enables the profile cache and shared token revocation.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ProfileTTL   time.Duration `mapstructure:"profile_ttl"`
}

// KafkaConfig enables audit fan-out. No brokers means audit stays local.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	AuditTopic    string   `mapstructure:"audit_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Partitions    int32    `mapstructure:"partitions"`
	Replication   int16    `mapstructure:"replication"`
}

// AuthConfig configures signup, login and access tokens.
type AuthConfig struct {
	JWTSigningKey  string        `mapstructure:"jwt_signing_key"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	JWTAudience    string        `mapstructure:"jwt_audience"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// AdminSignupCode lets a new user register as admin. Empty disables it.
	AdminSignupCode string `mapstructure:"admin_signup_code"`
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
}

// SessionConfig tunes per-user task sessions.
type SessionConfig struct {
	IdleTTL          time.Duration `mapstructure:"idle_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	DeleteConfirmTTL time.Duration `mapstructure:"delete_confirm_ttl"`
}

// BreakerConfig guards the record service.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// RateLimitConfig throttles requests per client IP. Redis, when configured,
// shares the counters between replicas.
type RateLimitConfig struct {
	Disabled     bool          `mapstructure:"disabled"`
	AuthRequests int           `mapstructure:"auth_requests"`
	AuthWindow   time.Duration `mapstructure:"auth_window"`
	APIRequests  int           `mapstructure:"api_requests"`
	APIWindow    time.Duration `mapstructure:"api_window"`
}

// IsProduction reports whether development defaults must be rejected.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

const devSigningKey = "dev-secret-key-change-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.profile_ttl", 5*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "taskdesk.audit")
	v.SetDefault("kafka.consumer_group", "taskdesk-audit")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication", 1)

	v.SetDefault("auth.jwt_signing_key", devSigningKey)
	v.SetDefault("auth.jwt_issuer", "taskdesk")
	v.SetDefault("auth.jwt_audience", "taskdesk-api")
	v.SetDefault("auth.access_token_ttl", 12*time.Hour)
	v.SetDefault("auth.admin_signup_code", "")
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("session.delete_confirm_ttl", 5*time.Minute)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 3)
	v.SetDefault("breaker.cooldown", 10*time.Second)

	v.SetDefault("rate_limit.disabled", false)
	v.SetDefault("rate_limit.auth_requests", 10)
	v.SetDefault("rate_limit.auth_window", time.Minute)
	v.SetDefault("rate_limit.api_requests", 120)
	v.SetDefault("rate_limit.api_window", time.Minute)
}

// Load reads the configuration. path may be empty; a missing file is not an
// error, but an unreadable one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from defaults and environment variables
// only, so main stays lean. TASKDESK_CONFIG names an optional YAML file.
func FromEnv() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	_ = v.BindEnv("config")
	return Load(v.GetString("config"))
}

func (c *Config) validate() error {
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		return errors.New("auth.jwt_signing_key must be set in production")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return errors.New("auth.access_token_ttl must be positive")
	}
	if len(c.Kafka.Brokers) == 1 && strings.Contains(c.Kafka.Brokers[0], ",") {
		c.Kafka.Brokers = strings.Split(c.Kafka.Brokers[0], ",")
	}
	return nil
}
