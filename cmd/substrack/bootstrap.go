package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/substrack/pkg/clientip"
	"github.com/dmitrymomot/substrack/pkg/email"
	"github.com/dmitrymomot/substrack/pkg/invoice"
	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/pkg/requestid"
)

func newLogger(env, level string) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(env, "substrack"),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	}
	if level != "" {
		opts = append(opts, logger.WithLevel(logger.ParseLevel(level)))
	}
	return logger.New(opts...)
}

func connectDB(ctx context.Context, cfg pg.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.InfoContext(ctx, "postgres connected")
	return pool, nil
}

func newSender(cfg email.Config, log *slog.Logger) (email.EmailSender, error) {
	if !cfg.PostmarkEnabled() {
		log.Warn("postmark disabled, writing emails to disk", slog.String("dir", cfg.DevOutputDir))
		return email.NewDevSender(cfg.DevOutputDir), nil
	}
	sender, err := email.NewPostmarkClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("postmark client: %w", err)
	}
	return sender, nil
}

// newLogoFetcher serves http(s) logo references, plus s3:// when a bucket
// region is configured.
func newLogoFetcher(ctx context.Context, cfg invoice.S3Config) (invoice.LogoFetcher, error) {
	web := invoice.NewHTTPLogoFetcher(&http.Client{Timeout: 10 * time.Second})
	fetchers := invoice.SchemeLogoFetcher{"http": web, "https": web}
	if cfg.Enabled() {
		s3, err := invoice.NewS3LogoFetcherFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 logo fetcher: %w", err)
		}
		fetchers["s3"] = s3
	}
	return fetchers, nil
}
