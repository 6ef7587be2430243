// Package config builds the single Config value the service runs with.
// Sources, lowest precedence first: DefaultConfig, a YAML file, a .env
// file, then BOOKING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

type RedisConfig struct {
	// Addr enables the Redis notification publisher when set.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type TokenConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

type SlotConfig struct {
	Step         time.Duration `yaml:"step"`
	MaxRangeDays int           `yaml:"max_range_days"`
}

// AdminConfig protects the /admin routes. A bearer token is accepted when it
// is a valid HS256 JWT signed with JWTSecret or equals one of StaticTokens.
type AdminConfig struct {
	JWTSecret    string   `yaml:"jwt_secret"`
	StaticTokens []string `yaml:"static_tokens"`
}

type ReminderConfig struct {
	Enabled bool          `yaml:"enabled"`
	Cron    string        `yaml:"cron"`
	Lead    time.Duration `yaml:"lead"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	Listen        string `yaml:"listen"`
	PublicBaseURL string `yaml:"public_base_url"`
	// OwnerTimezone defines calendar dates for daily quotas.
	OwnerTimezone string `yaml:"owner_timezone"`
	LogLevel      string `yaml:"log_level"`

	Store     StoreConfig    `yaml:"store"`
	Redis     RedisConfig    `yaml:"redis"`
	Tokens    TokenConfig    `yaml:"tokens"`
	Slots     SlotConfig     `yaml:"slots"`
	Admin     AdminConfig    `yaml:"admin"`
	Reminders ReminderConfig `yaml:"reminders"`
	CORS      CORSConfig     `yaml:"cors"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		PublicBaseURL: "http://localhost:8080",
		OwnerTimezone: "UTC",
		LogLevel:      "info",
		Store:         StoreConfig{Driver: DriverPostgres},
		Redis:         RedisConfig{Channel: "booking_events"},
		Tokens:        TokenConfig{TTL: 7 * 24 * time.Hour},
		Slots:         SlotConfig{Step: 15 * time.Minute, MaxRangeDays: 90},
		Reminders:     ReminderConfig{Cron: "*/10 * * * *", Lead: 24 * time.Hour},
		CORS:          CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = def.PublicBaseURL
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if c.OwnerTimezone == "" {
		c.OwnerTimezone = def.OwnerTimezone
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = def.Redis.Channel
	}
	if c.Tokens.TTL <= 0 {
		c.Tokens.TTL = def.Tokens.TTL
	}
	if c.Slots.Step <= 0 {
		c.Slots.Step = def.Slots.Step
	}
	if c.Slots.MaxRangeDays <= 0 {
		c.Slots.MaxRangeDays = def.Slots.MaxRangeDays
	}
	if c.Reminders.Cron == "" {
		c.Reminders.Cron = def.Reminders.Cron
	}
	if c.Reminders.Lead <= 0 {
		c.Reminders.Lead = def.Reminders.Lead
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = def.CORS.AllowedOrigins
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Tokens.Secret == "" {
		errs = append(errs, errors.New("tokens.secret is required"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if _, err := time.LoadLocation(c.OwnerTimezone); err != nil {
		errs = append(errs, fmt.Errorf("owner_timezone: %w", err))
	}
	if c.Slots.Step < time.Minute {
		errs = append(errs, fmt.Errorf("slots.step must be at least 1m, got %s", c.Slots.Step))
	}
	return errors.Join(errs...)
}

// Load reads path (optional), the .env file in the working directory if
// present and the environment, then normalizes and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. PORT, DATABASE_URL,
// JWT_HMAC_SECRET and STATIC_TOKENS are honoured when the BOOKING_*
// equivalent is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	list := func(dst *[]string, keys ...string) {
		var raw string
		str(&raw, keys...)
		if raw != "" {
			*dst = splitList(raw)
		}
	}
	var errs []error
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str(&c.Listen, "BOOKING_LISTEN")
	if v, ok := lookup("PORT"); ok && v != "" {
		if _, set := lookup("BOOKING_LISTEN"); !set {
			c.Listen = ":" + v
		}
	}
	str(&c.PublicBaseURL, "BOOKING_PUBLIC_BASE_URL")
	str(&c.OwnerTimezone, "BOOKING_OWNER_TIMEZONE")
	str(&c.LogLevel, "BOOKING_LOG_LEVEL", "LOG_LEVEL")
	str(&c.Store.Driver, "BOOKING_STORE_DRIVER")
	str(&c.Store.DatabaseURL, "BOOKING_DATABASE_URL", "DATABASE_URL")
	str(&c.Redis.Addr, "BOOKING_REDIS_ADDR")
	str(&c.Redis.Password, "BOOKING_REDIS_PASSWORD")
	num(&c.Redis.DB, "BOOKING_REDIS_DB")
	str(&c.Redis.Channel, "BOOKING_REDIS_CHANNEL")
	str(&c.Tokens.Secret, "BOOKING_TOKEN_SECRET")
	dur(&c.Tokens.TTL, "BOOKING_TOKEN_TTL")
	str(&c.Tokens.Issuer, "BOOKING_TOKEN_ISSUER")
	dur(&c.Slots.Step, "BOOKING_SLOT_STEP")
	num(&c.Slots.MaxRangeDays, "BOOKING_MAX_RANGE_DAYS")
	str(&c.Admin.JWTSecret, "BOOKING_ADMIN_JWT_SECRET", "JWT_HMAC_SECRET")
	list(&c.Admin.StaticTokens, "BOOKING_ADMIN_STATIC_TOKENS", "STATIC_TOKENS")
	if v, ok := lookup("BOOKING_REMINDERS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BOOKING_REMINDERS_ENABLED: %w", err))
		} else {
			c.Reminders.Enabled = b
		}
	}
	str(&c.Reminders.Cron, "BOOKING_REMINDERS_CRON")
	dur(&c.Reminders.Lead, "BOOKING_REMINDERS_LEAD")
	list(&c.CORS.AllowedOrigins, "BOOKING_CORS_ORIGINS")

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
