package main

import (
	"time"

	"github.com/dmitrymomot/substrack/pkg/config"
	"github.com/dmitrymomot/substrack/pkg/email"
	"github.com/dmitrymomot/substrack/pkg/httpserver"
	"github.com/dmitrymomot/substrack/pkg/invoice"
	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/pkg/redis"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	AccessTokenSecret string        `env:"ACCESS_TOKEN_SECRET,required"`
	PortalURL         string        `env:"PORTAL_URL"`
	AdminAPIKey       string        `env:"ADMIN_API_KEY"`
	CredentialsKey    string        `env:"CREDENTIALS_KEY"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
	EventLogTTL       time.Duration `env:"WEBHOOK_EVENT_TTL" envDefault:"72h"`
	MaxWebhookBytes   int64         `env:"WEBHOOK_MAX_BYTES" envDefault:"1048576"`
	FlushTimeout      time.Duration `env:"EMAIL_FLUSH_TIMEOUT" envDefault:"30s"`

	// Per client IP and route. Zero disables throttling.
	PublicRateLimit  int           `env:"PUBLIC_RATE_LIMIT" envDefault:"30"`
	PublicRateWindow time.Duration `env:"PUBLIC_RATE_WINDOW" envDefault:"1m"`
	TrustedIPHeaders []string      `env:"TRUSTED_IP_HEADERS" envSeparator:"," envDefault:"X-Forwarded-For"`
}

// serveConfig gathers each package's own Config.
type serveConfig struct {
	App   appConfig
	HTTP  httpserver.Config
	PG    pg.Config
	Redis redis.Config
	Email email.Config
	S3    invoice.S3Config
}

func loadServeConfig() (serveConfig, error) {
	var cfg serveConfig
	for _, load := range []func() error{
		func() error { return config.Load(&cfg.App) },
		func() error { return config.Load(&cfg.HTTP) },
		func() error { return config.Load(&cfg.PG) },
		func() error { return config.Load(&cfg.Redis) },
		func() error { return config.Load(&cfg.Email) },
		func() error { return config.Load(&cfg.S3) },
	} {
		if err := load(); err != nil {
			return serveConfig{}, err
		}
	}
	return cfg, nil
}

// dbConfig is what migrate and reconcile need.
type dbConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`
	PG       pg.Config
}

func loadDBConfig() (dbConfig, error) {
	var cfg dbConfig
	if err := config.Load(&cfg); err != nil {
		return dbConfig{}, err
	}
	return cfg, nil
}
