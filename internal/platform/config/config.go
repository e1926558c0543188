// Package config loads process configuration from flags, ENDORSER_*
// environment variables and an optional YAML file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"endorser/internal/claims/identity"
	"endorser/internal/claims/quota"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: ENDORSER_REDIS_URL sets redis.url.
const EnvPrefix = "ENDORSER"

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Claims   ClaimsConfig   `mapstructure:"claims"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LogLevel string         `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the claim store. An empty URL keeps everything in
// memory.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig configures the shared visibility network and chain lease. An
// empty URL keeps both in process.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ClaimsConfig struct {
	HandlePrefix          string        `mapstructure:"handle_prefix"`
	ClaimsPerWeek         int           `mapstructure:"claims_per_week"`
	RegistrationsPerMonth int           `mapstructure:"registrations_per_month"`
	NetworkCacheTTL       time.Duration `mapstructure:"network_cache_ttl"`
	AuditBuffer           int           `mapstructure:"audit_buffer"`
}

type ChainConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Interval  time.Duration `mapstructure:"interval"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
}

// AuthConfig holds the verification and operator secrets. AdminDIDs are
// registered at start-up so a fresh ledger has issuers.
type AuthConfig struct {
	AdminDIDs  []string `mapstructure:"admin_dids"`
	AdminToken string   `mapstructure:"admin_token"`
	JWTSecret  string   `mapstructure:"jwt_secret"`
}

// SetDefaults registers every key with its default, which also makes each
// key visible to AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("claims.handle_prefix", identity.DefaultHandlePrefix)
	v.SetDefault("claims.claims_per_week", quota.DefaultClaimsPerWeek)
	v.SetDefault("claims.registrations_per_month", quota.DefaultRegistrationsPerMonth)
	v.SetDefault("claims.network_cache_ttl", 30*time.Second)
	v.SetDefault("claims.audit_buffer", 1024)
	v.SetDefault("chain.batch_size", 500)
	v.SetDefault("chain.interval", 10*time.Second)
	v.SetDefault("chain.lease_ttl", time.Minute)
	v.SetDefault("auth.admin_dids", []string{})
	v.SetDefault("auth.admin_token", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Claims.ClaimsPerWeek <= 0 {
		errs = append(errs, errors.New("claims.claims_per_week must be positive"))
	}
	if c.Claims.RegistrationsPerMonth <= 0 {
		errs = append(errs, errors.New("claims.registrations_per_month must be positive"))
	}
	if c.Chain.BatchSize <= 0 {
		errs = append(errs, errors.New("chain.batch_size must be positive"))
	}
	if c.Chain.Interval <= 0 {
		errs = append(errs, errors.New("chain.interval must be positive"))
	}
	return errors.Join(errs...)
}

// Limits returns the quota limits for the claim service.
func (c *Config) Limits() quota.Limits {
	return quota.Limits{
		ClaimsPerWeek:         c.Claims.ClaimsPerWeek,
		RegistrationsPerMonth: c.Claims.RegistrationsPerMonth,
	}
}
