// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	CallbackTimeout time.Duration `yaml:"callback_timeout"` // upper bound for reconciling one delivery
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis-backed features
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MpesaConfig struct {
	Env              string        `yaml:"env"` // sandbox | production | mock
	BaseURL          string        `yaml:"base_url"`
	ConsumerKey      string        `yaml:"consumer_key"`
	ConsumerSecret   string        `yaml:"consumer_secret"`
	ShortCode        string        `yaml:"shortcode"`
	Passkey          string        `yaml:"passkey"`
	CallbackURL      string        `yaml:"callback_url"` // payment id is appended as a path segment
	AccountReference string        `yaml:"account_reference"`
	Timeout          time.Duration `yaml:"timeout"`
	TokenMargin      time.Duration `yaml:"token_margin"`
}

// Mock reports whether pushes go to the in-process noop gateway.
func (m MpesaConfig) Mock() bool { return m.Env == "mock" }

type RateLimitConfig struct {
	PerPhone int           `yaml:"per_phone"` // 0 disables
	Window   time.Duration `yaml:"window"`
}

type PaymentConfig struct {
	Mpesa     MpesaConfig     `yaml:"mpesa"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type TelegramNotifyConfig struct {
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

type NotifyConfig struct {
	Workers      int                  `yaml:"workers"`
	RedisChannel string               `yaml:"redis_channel"`
	Telegram     TelegramNotifyConfig `yaml:"telegram"`
}

type SchedulerConfig struct {
	StaleCheckInterval time.Duration `yaml:"stale_check_interval"`
	StaleAfter         time.Duration `yaml:"stale_after"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (a missing file is allowed when the
// environment supplies everything), then applies .env and environment overrides.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	applyEnv(&cfg)

	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Payment.Mpesa.ConsumerKey, "MPESA_CONSUMER_KEY")
	setStr(&cfg.Payment.Mpesa.ConsumerSecret, "MPESA_CONSUMER_SECRET")
	setStr(&cfg.Payment.Mpesa.ShortCode, "MPESA_SHORTCODE")
	setStr(&cfg.Payment.Mpesa.Passkey, "MPESA_PASSKEY")
	setStr(&cfg.Payment.Mpesa.Env, "MPESA_ENV")
	setStr(&cfg.Payment.Mpesa.CallbackURL, "CALLBACK_URL")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Admin.JWTSecret, "JWT_SECRET")
	setStr(&cfg.Notify.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = n
		}
	}
}

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 5000
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.CallbackTimeout <= 0 {
		cfg.HTTP.CallbackTimeout = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	m := &cfg.Payment.Mpesa
	m.Env = strings.ToLower(strings.TrimSpace(m.Env))
	if m.Env == "" {
		m.Env = "sandbox"
	}
	if m.BaseURL == "" {
		m.BaseURL = "https://sandbox.safaricom.co.ke"
		if m.Env == "production" {
			m.BaseURL = "https://api.safaricom.co.ke"
		}
	}
	m.BaseURL = strings.TrimRight(m.BaseURL, "/")
	m.CallbackURL = strings.TrimRight(m.CallbackURL, "/")
	if m.AccountReference == "" {
		m.AccountReference = "ADKIMS"
	}
	if m.Timeout <= 0 {
		m.Timeout = 15 * time.Second
	}
	if m.TokenMargin <= 0 {
		m.TokenMargin = time.Minute
	}

	if cfg.Payment.RateLimit.Window <= 0 {
		cfg.Payment.RateLimit.Window = time.Minute
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 4
	}
	if cfg.Notify.RedisChannel == "" {
		cfg.Notify.RedisChannel = "payment-updated"
	}
	if cfg.Scheduler.StaleCheckInterval <= 0 {
		cfg.Scheduler.StaleCheckInterval = time.Minute
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 10 * time.Minute
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	m := c.Payment.Mpesa
	var missing []string
	if !m.Mock() {
		if m.ConsumerKey == "" {
			missing = append(missing, "payment.mpesa.consumer_key")
		}
		if m.ConsumerSecret == "" {
			missing = append(missing, "payment.mpesa.consumer_secret")
		}
		if m.ShortCode == "" {
			missing = append(missing, "payment.mpesa.shortcode")
		}
		if m.Passkey == "" {
			missing = append(missing, "payment.mpesa.passkey")
		}
	}
	if m.CallbackURL == "" {
		missing = append(missing, "payment.mpesa.callback_url")
	}
	if c.Database.URL == "" && !c.Runtime.Dev {
		missing = append(missing, "database.url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	switch m.Env {
	case "sandbox", "production", "mock":
	default:
		return fmt.Errorf("payment.mpesa.env must be sandbox, production or mock, got %q", m.Env)
	}
	if !strings.HasPrefix(m.CallbackURL, "http://") && !strings.HasPrefix(m.CallbackURL, "https://") {
		return errors.New("payment.mpesa.callback_url must be an absolute http(s) url")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
