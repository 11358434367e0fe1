package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

type Config struct {
	AppEnv string `env:"APP_ENV,default=staging"`
	Port   string `env:"PORT,default=5000"`

	DBDriver string `env:"DB_DRIVER,default=sqlite"`
	DBDSN    string `env:"DB_DSN,default=chatboard.db"`

	// comma separated
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	BroadcastSecret    string        `env:"BROADCAST_SECRET"`
	BroadcastTicketTTL time.Duration `env:"BROADCAST_TICKET_TTL,default=1m"`
	WSMaxMessageSize   int64         `env:"WS_MAX_MESSAGE_SIZE,default=4096"`

	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=10s"`
	RateLimitCapacity int           `env:"RATE_LIMIT_CAPACITY,default=20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

func (c *Config) IsStaging() bool    { return c.AppEnv == "staging" }
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func (c *Config) Origins() []string {
	if o := splitList(c.AllowedOrigins); len(o) > 0 {
		return o
	}
	return slices.Clone(defaultOrigins)
}

func (c *Config) Proxies() []string {
	return splitList(c.TrustedProxies)
}

// loadDotEnv loads .env outside production. A missing file is not an error.
func loadDotEnv() error {
	if os.Getenv("APP_ENV") == "production" {
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return nil
}

// Load reads .env (outside production) and the process environment.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return FromEnviron()
}

// FromEnviron reads the process environment only.
func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !slices.Contains([]string{"staging", "production"}, c.AppEnv) {
		return errors.New("environment variable APP_ENV must be 'staging' or 'production'")
	}
	if c.RateLimitCapacity <= 0 {
		c.RateLimitCapacity = 20
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 10 * time.Second
	}
	if c.IsProduction() && len(splitList(c.AllowedOrigins)) == 0 {
		return errors.New("ALLOWED_ORIGINS must be set in production")
	}
	return nil
}

// Log prints the effective values that matter when debugging an
// environment. Secrets are reported by presence only.
func (c *Config) Log() {
	log.Printf("[config] AppEnv=%s IsStaging=%v IsProduction=%v", c.AppEnv, c.IsStaging(), c.IsProduction())
	log.Printf("[config] Port=%s DBDriver=%s", c.Port, c.DBDriver)
	log.Printf("[config] Origins=%v TrustedProxies=%v", c.Origins(), c.Proxies())
	log.Printf("[config] BroadcastSecretPresent=%v TicketTTL=%s WSMaxMessageSize=%d", c.BroadcastSecret != "", c.BroadcastTicketTTL, c.WSMaxMessageSize)
	log.Printf("[config] RateLimit window=%s capacity=%d shutdown=%s", c.RateLimitWindow, c.RateLimitCapacity, c.ShutdownTimeout)
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
