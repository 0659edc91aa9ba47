// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rate limiter backends.
const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Raid      RaidConfig      `mapstructure:"raid"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RaidConfig holds raid rules.
type RaidConfig struct {
	MaxPerDay       int    `mapstructure:"max_per_day"`
	TagDurationDays int    `mapstructure:"tag_duration_days"`
	XPWinAttacker   int64  `mapstructure:"xp_win_attacker"`
	XPWinDefender   int64  `mapstructure:"xp_win_defender"`
	XPLoseDefender  int64  `mapstructure:"xp_lose_defender"`
	Timezone        string `mapstructure:"timezone"`
	// LockTimeout bounds how long an execute waits for the attacker lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// RateLimitConfig holds request rate limiting configuration.
type RateLimitConfig struct {
	Backend  string        `mapstructure:"backend"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	IPRPS    float64       `mapstructure:"ip_rps"`
	IPBurst  int           `mapstructure:"ip_burst"`
}

// RedisConfig holds Redis connection configuration for the shared limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IdentityConfig holds how the caller identity reaches this service.
type IdentityConfig struct {
	Header string `mapstructure:"header"`
}

// JobsConfig holds background job intervals.
type JobsConfig struct {
	TagSweepInterval        time.Duration `mapstructure:"tag_sweep_interval"`
	RewardReconcileInterval time.Duration `mapstructure:"reward_reconcile_interval"`
	RewardGrace             time.Duration `mapstructure:"reward_grace"`
	LimiterSweepInterval    time.Duration `mapstructure:"limiter_sweep_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location returns the time zone that defines raid days and weeks.
func (r *RaidConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(r.Timezone)
}

// TagDuration returns how long a raid tag stays active.
func (r *RaidConfig) TagDuration() time.Duration {
	return time.Duration(r.TagDurationDays) * 24 * time.Hour
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, RAID_MAX_PER_DAY, RATELIMIT_BACKEND
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 64*1024)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cityraid")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "cityraid")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("raid.max_per_day", 3)
	v.SetDefault("raid.tag_duration_days", 3)
	v.SetDefault("raid.xp_win_attacker", 50)
	v.SetDefault("raid.xp_win_defender", 30)
	v.SetDefault("raid.xp_lose_defender", 30)
	v.SetDefault("raid.timezone", "UTC")
	v.SetDefault("raid.lock_timeout", "5s")

	v.SetDefault("ratelimit.backend", LimiterMemory)
	v.SetDefault("ratelimit.requests", 5)
	v.SetDefault("ratelimit.window", "10s")
	v.SetDefault("ratelimit.ip_rps", 20)
	v.SetDefault("ratelimit.ip_burst", 40)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("identity.header", "X-Profile-Login")

	v.SetDefault("jobs.tag_sweep_interval", "5m")
	v.SetDefault("jobs.reward_reconcile_interval", "1m")
	v.SetDefault("jobs.reward_grace", "30s")
	v.SetDefault("jobs.limiter_sweep_interval", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Validate rejects settings the raid rules cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Raid.MaxPerDay <= 0 {
		errs = append(errs, errors.New("raid.max_per_day must be positive"))
	}
	if c.Raid.TagDurationDays <= 0 {
		errs = append(errs, errors.New("raid.tag_duration_days must be positive"))
	}
	if _, err := c.Raid.Location(); err != nil {
		errs = append(errs, fmt.Errorf("raid.timezone: %w", err))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.requests and ratelimit.window must be positive"))
	}
	switch c.RateLimit.Backend {
	case LimiterMemory, LimiterRedis:
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend: unknown backend %q", c.RateLimit.Backend))
	}
	if c.Identity.Header == "" {
		errs = append(errs, errors.New("identity.header must be set"))
	}
	return errors.Join(errs...)
}
