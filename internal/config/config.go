// Package config содержит логику чтения конфигурации сервиса kigalihub.
package config

import (
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Драйверы хранилища медиафайлов.
const (
	MediaBackend    = "backend"
	MediaCloudinary = "cloudinary"
)

// ErrInvalid возвращается, если конфигурация неполна или противоречива.
var ErrInvalid = errors.New("invalid configuration")

// Config содержит параметры конфигурации сервиса kigalihub.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	BackendURL     string        `env:"BACKEND_URL"`
	BackendAnonKey string        `env:"BACKEND_ANON_KEY"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	RunMigrations  bool          `env:"RUN_MIGRATIONS"`
	DatabaseRLS    bool          `env:"DATABASE_RLS"`
	RedisURL       string        `env:"REDIS_URL"`
	CookieSecret   string        `env:"COOKIE_SECRET"`
	AuthTimeout    time.Duration `env:"AUTH_TIMEOUT"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL"`
	MediaDriver    string        `env:"MEDIA_DRIVER"`
	CloudinaryURL  string        `env:"CLOUDINARY_URL"`
	Debug          bool          `env:"DEBUG"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения, в том числе из файла .env, имеют приоритет над флагами.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.BackendURL, "b", "", "backend base URL")
	flag.StringVar(&cfg.BackendAnonKey, "k", "", "backend public (anon) key")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "backend database URI")
	flag.BoolVar(&cfg.RunMigrations, "m", false, "apply database migrations on start")
	flag.BoolVar(&cfg.DatabaseRLS, "rls", true, "run database queries as the signed-in user")
	flag.StringVar(&cfg.RedisURL, "r", "", "redis URL for session persistence")
	flag.StringVar(&cfg.CookieSecret, "s", "", "session cookie signing secret")
	flag.DurationVar(&cfg.AuthTimeout, "t", 10*time.Second, "role resolution timeout")
	flag.DurationVar(&cfg.SessionIdleTTL, "idle", 2*time.Hour, "idle browser session lifetime")
	flag.StringVar(&cfg.MediaDriver, "media", MediaBackend, "media storage driver (backend or cloudinary)")
	flag.StringVar(&cfg.CloudinaryURL, "cloudinary", "", "cloudinary URL")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.CookieSecret == "" {
		cfg.CookieSecret = rand.Text()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("%w: backend URL is required", ErrInvalid)
	}
	if c.BackendAnonKey == "" {
		return fmt.Errorf("%w: backend anon key is required", ErrInvalid)
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("%w: auth timeout must be positive", ErrInvalid)
	}
	if c.RunMigrations && c.DatabaseURI == "" {
		return fmt.Errorf("%w: migrations require a database URI", ErrInvalid)
	}

	switch c.MediaDriver {
	case MediaBackend:
	case MediaCloudinary:
		if c.CloudinaryURL == "" {
			return fmt.Errorf("%w: cloudinary driver requires CLOUDINARY_URL", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown media driver %q", ErrInvalid, c.MediaDriver)
	}
	return nil
}
