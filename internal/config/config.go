// Package config loads the client's settings from defaults, a config file,
// .env and LCU_ prefixed environment variables.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "LCU"

const DefaultEndpoint = "https://fearless-tuls.netlify.app/.netlify/functions/lcuDraft"

type Config struct {
	WorkspaceID  string `mapstructure:"workspace-id"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password-hash"`
	Endpoint     string `mapstructure:"endpoint"`

	Log          LogConfig          `mapstructure:"log"`
	LCU          LCUConfig          `mapstructure:"lcu"`
	Transmission TransmissionConfig `mapstructure:"transmission"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Champions    ChampionsConfig    `mapstructure:"champions"`
	Status       StatusConfig       `mapstructure:"status"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Filter string `mapstructure:"filter"`
}

type LCUConfig struct {
	Lockfile       string        `mapstructure:"lockfile"`
	Port           int           `mapstructure:"port"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

type TransmissionConfig struct {
	BatchSize       int           `mapstructure:"batch-size"`
	BatchTimeout    time.Duration `mapstructure:"batch-timeout"`
	RetryAttempts   int           `mapstructure:"retry-attempts"`
	RetryDelay      time.Duration `mapstructure:"retry-delay"`
	MaxRetryDelay   time.Duration `mapstructure:"max-retry-delay"`
	RequestTimeout  time.Duration `mapstructure:"request-timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
	PerSecond       int           `mapstructure:"per-second"`
	Burst           int           `mapstructure:"burst"`
	PerMinute       int           `mapstructure:"per-minute"`
	PerHour         int           `mapstructure:"per-hour"`
	RateWaitTimeout time.Duration `mapstructure:"rate-wait-timeout"`
	ValidateOnStart bool          `mapstructure:"validate-on-start"`
}

type MonitoringConfig struct {
	ChangeDetection     bool          `mapstructure:"change-detection"`
	ResolveNames        bool          `mapstructure:"resolve-names"`
	EmptyBanPlaceholder bool          `mapstructure:"empty-ban-placeholder"`
	RefetchTimeout      time.Duration `mapstructure:"refetch-timeout"`
}

type ChampionsConfig struct {
	DataDragonURL   string        `mapstructure:"data-dragon-url"`
	FallbackVersion string        `mapstructure:"fallback-version"`
	TTL             time.Duration `mapstructure:"ttl"`
	RedisURL        string        `mapstructure:"redis-url"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key so environment variables are picked up
// by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace-id", "")
	v.SetDefault("password", "")
	v.SetDefault("password-hash", "")
	v.SetDefault("endpoint", DefaultEndpoint)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.filter", "")

	v.SetDefault("lcu.lockfile", "")
	v.SetDefault("lcu.port", 0)
	v.SetDefault("lcu.token", "")
	v.SetDefault("lcu.request-timeout", "10s")

	v.SetDefault("transmission.batch-size", 10)
	v.SetDefault("transmission.batch-timeout", "1s")
	v.SetDefault("transmission.retry-attempts", 3)
	v.SetDefault("transmission.retry-delay", "1s")
	v.SetDefault("transmission.max-retry-delay", "30s")
	v.SetDefault("transmission.request-timeout", "30s")
	v.SetDefault("transmission.concurrency", 4)
	v.SetDefault("transmission.per-second", 10)
	v.SetDefault("transmission.burst", 20)
	v.SetDefault("transmission.per-minute", 300)
	v.SetDefault("transmission.per-hour", 5000)
	v.SetDefault("transmission.rate-wait-timeout", "30s")
	v.SetDefault("transmission.validate-on-start", true)

	v.SetDefault("monitoring.change-detection", true)
	v.SetDefault("monitoring.resolve-names", true)
	v.SetDefault("monitoring.empty-ban-placeholder", false)
	v.SetDefault("monitoring.refetch-timeout", "10s")

	v.SetDefault("champions.data-dragon-url", "https://ddragon.leagueoflegends.com")
	v.SetDefault("champions.fallback-version", "15.5.1")
	v.SetDefault("champions.ttl", "24h")
	v.SetDefault("champions.redis-url", "")

	v.SetDefault("status.addr", "127.0.0.1:7878")
}

// NewViper returns a viper instance with defaults and environment binding.
// LCU_TRANSMISSION_BATCH_SIZE sets transmission.batch-size.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes v into a Config. A plain password is hashed and dropped.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.PasswordHash == "" && cfg.Password != "" {
		cfg.PasswordHash = HashPassword(cfg.Password)
	}
	cfg.Password = ""
	return &cfg, nil
}

// HashPassword is the digest the ingestion endpoint expects.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.WorkspaceID) == "" {
		errs = append(errs, errors.New("workspace-id is required"))
	}
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if u, err := url.Parse(c.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint %q is not an http(s) url", c.Endpoint))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}

	if (c.LCU.Port > 0) != (c.LCU.Token != "") {
		errs = append(errs, errors.New("lcu.port and lcu.token must be set together"))
	}

	t := c.Transmission
	if t.BatchSize < 1 {
		errs = append(errs, errors.New("transmission.batch-size must be positive"))
	}
	if t.RetryAttempts < 1 {
		errs = append(errs, errors.New("transmission.retry-attempts must be at least 1"))
	}
	if t.PerSecond < 1 || t.PerMinute < 1 || t.PerHour < 1 {
		errs = append(errs, errors.New("transmission rate limits must be positive"))
	}
	if t.Concurrency < 1 {
		errs = append(errs, errors.New("transmission.concurrency must be positive"))
	}

	return errors.Join(errs...)
}
