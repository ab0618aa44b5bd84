// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`     // must exceed poll.timeout for long-polling
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"` // short routes; must exceed the verify budget
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	PublicURL       string        `yaml:"public_url" env:"PUBLIC_URL"`
	CookieSecure    bool          `yaml:"cookie_secure" env:"COOKIE_SECURE"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"` // enable sampling in prod
}

type BillingConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret" env:"JWT_SECRET"`
	CookieName string `yaml:"cookie_name" env:"COOKIE_NAME"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // memory|redis|postgres
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"URL"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"URL"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type PostmarkConfig struct {
	ServerToken  string `yaml:"server_token" env:"SERVER_TOKEN"`
	AccountToken string `yaml:"account_token" env:"ACCOUNT_TOKEN"`
	From         string `yaml:"from" env:"FROM"`
}

type VerifyConfig struct {
	MaxRetries  uint64        `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	RatePerHour int           `yaml:"rate_per_hour" env:"RATE_PER_HOUR"` // per client key, 0 disables
}

type PollConfig struct {
	Interval      time.Duration `yaml:"interval" env:"INTERVAL"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RedirectAfter time.Duration `yaml:"redirect_after" env:"REDIRECT_AFTER"`
}

type FlowConfig struct {
	LoginPath    string        `yaml:"login_path" env:"LOGIN_PATH"`
	PlansPath    string        `yaml:"plans_path" env:"PLANS_PATH"`
	SuccessPath  string        `yaml:"success_path" env:"SUCCESS_PATH"`
	SupportEmail string        `yaml:"support_email" env:"SUPPORT_EMAIL"`
	HandoffTTL   time.Duration `yaml:"handoff_ttl" env:"HANDOFF_TTL"`

	// how long a reconciled subscription stays readable without a refresh
	SubscriptionTTL time.Duration `yaml:"subscription_ttl" env:"SUBSCRIPTION_TTL"`
}

type WorkerConfig struct {
	Size  int `yaml:"size" env:"SIZE"`
	Queue int `yaml:"queue" env:"QUEUE"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Billing  BillingConfig  `yaml:"billing" envPrefix:"BILLING_"`
	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Postmark PostmarkConfig `yaml:"postmark" envPrefix:"POSTMARK_"`
	Verify   VerifyConfig   `yaml:"verify" envPrefix:"VERIFY_"`
	Poll     PollConfig     `yaml:"poll" envPrefix:"POLL_"`
	Flow     FlowConfig     `yaml:"flow" envPrefix:"FLOW_"`
	Worker   WorkerConfig   `yaml:"worker" envPrefix:"WORKER_"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when every required value
// comes from the environment), then applies .env and CHECKOUT_* overrides.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
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
	}

	// The .env file is optional.
	_ = godotenv.Load()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CHECKOUT_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Billing.Timeout <= 0 {
		cfg.Billing.Timeout = 15 * time.Second
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Flow.SubscriptionTTL = normalizeTTL(cfg.Flow.SubscriptionTTL)
	if cfg.Verify.RetryDelay <= 0 {
		cfg.Verify.RetryDelay = 3 * time.Second
	}
	if cfg.Verify.MaxRetries == 0 {
		cfg.Verify.MaxRetries = 1
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 3 * time.Second
	}
	if cfg.Poll.Timeout <= 0 {
		cfg.Poll.Timeout = 10 * time.Minute
	}
	if cfg.Poll.RedirectAfter <= 0 {
		cfg.Poll.RedirectAfter = 3 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = cfg.Poll.Timeout + 30*time.Second
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = cfg.VerifyBudget() + 5*time.Second
	}
	if cfg.Flow.LoginPath == "" {
		cfg.Flow.LoginPath = "/login"
	}
	if cfg.Flow.PlansPath == "" {
		cfg.Flow.PlansPath = "/plans"
	}
	if cfg.Flow.SuccessPath == "" {
		cfg.Flow.SuccessPath = "/dashboard"
	}
	if cfg.Flow.HandoffTTL <= 0 {
		cfg.Flow.HandoffTTL = 7 * 24 * time.Hour
	}
	if cfg.Worker.Size <= 0 {
		cfg.Worker.Size = 4
	}
	if cfg.Worker.Queue <= 0 {
		cfg.Worker.Queue = 128
	}
}

// Validate performs minimal validation of required settings.
func (c *Config) Validate() error {
	if c.Billing.BaseURL == "" {
		return errors.New("billing.base_url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for store.driver=redis")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for store.driver=postgres")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Server.WriteTimeout <= c.Poll.Timeout {
		return errors.New("server.write_timeout must exceed poll.timeout")
	}
	if budget := c.VerifyBudget(); c.Server.RequestTimeout <= budget {
		return fmt.Errorf("server.request_timeout %s must exceed the verify budget %s", c.Server.RequestTimeout, budget)
	}
	if c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return errors.New("server.write_timeout must exceed server.request_timeout")
	}
	return nil
}

// VerifyBudget is the worst-case duration of one checkout verification: every
// attempt hitting billing.timeout plus the delays between them.
func (c *Config) VerifyBudget() time.Duration {
	return time.Duration(c.Verify.MaxRetries+1)*c.Billing.Timeout + time.Duration(c.Verify.MaxRetries)*c.Verify.RetryDelay
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
