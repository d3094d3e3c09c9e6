package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	billinghttp "github.com/dmitrymomot/substrack/modules/billing"
	"github.com/dmitrymomot/substrack/pkg/clientip"
	"github.com/dmitrymomot/substrack/pkg/httpserver"
	"github.com/dmitrymomot/substrack/pkg/invoice"
	"github.com/dmitrymomot/substrack/pkg/jwt"
	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/pkg/ratelimit"
	"github.com/dmitrymomot/substrack/pkg/redis"
	"github.com/dmitrymomot/substrack/pkg/requestid"
	"github.com/dmitrymomot/substrack/pkg/secrets"
	"github.com/dmitrymomot/substrack/svc/billing"
	"github.com/dmitrymomot/substrack/svc/billing/pgstore"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the counter reconciliation loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg serveConfig, migrate bool) error {
	log := newLogger(cfg.App.Env, cfg.App.LogLevel)

	pool, err := connectDB(ctx, cfg.PG, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
			return err
		}
	}
	var storeOpts []pgstore.Option
	if cfg.App.CredentialsKey != "" {
		sealer, err := secrets.NewFromBase64(cfg.App.CredentialsKey)
		if err != nil {
			return fmt.Errorf("credentials key: %w", err)
		}
		storeOpts = append(storeOpts, pgstore.WithSealer(sealer))
	} else {
		log.WarnContext(ctx, "CREDENTIALS_KEY is empty, merchant Stripe secrets are stored in clear text")
	}
	store := pgstore.New(pool, storeOpts...)

	readiness := []func(context.Context) error{pg.Healthcheck(pool)}

	var (
		events     billing.EventLog = billing.NopEventLog{}
		limitStore ratelimit.Store  = ratelimit.NewMemoryStore()
	)
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		events = billing.NewRedisEventLog(client, cfg.App.EventLogTTL)
		limitStore = ratelimit.NewRedisStore(client)
		readiness = append(readiness, redis.Healthcheck(client))
	} else {
		log.WarnContext(ctx, "redis disabled, webhook event deduplication relies on the store only")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := billing.NewMetrics(reg)

	signer, err := jwt.NewFromString(cfg.App.AccessTokenSecret)
	if err != nil {
		return fmt.Errorf("access token signer: %w", err)
	}
	tokens := billing.NewTokenIssuer(store, signer, nil)

	logos, err := newLogoFetcher(ctx, cfg.S3)
	if err != nil {
		return err
	}
	generator := invoice.NewGenerator(invoice.WithLogoFetcher(logos), invoice.WithLogger(log))

	sender, err := newSender(cfg.Email, log)
	if err != nil {
		return err
	}
	notifier := billing.NewEmailNotifier(sender, generator,
		billing.WithNotifierLogger(log),
		billing.WithNotifierMetrics(metrics),
		billing.WithPortalURL(cfg.App.PortalURL),
	)

	processor := billing.NewStripeProcessor(nil)
	webhooks := billing.NewService(store, tokens,
		billing.WithProcessor(processor),
		billing.WithNotifier(notifier),
		billing.WithEventLog(events),
		billing.WithMetrics(metrics),
		billing.WithLogger(log),
	)

	var limiter ratelimit.Limiter
	if cfg.App.PublicRateLimit > 0 {
		fw, err := ratelimit.NewFixedWindow(limitStore, cfg.App.PublicRateLimit, cfg.App.PublicRateWindow, ratelimit.WithPrefix("public:"))
		if err != nil {
			return fmt.Errorf("public rate limiter: %w", err)
		}
		limiter = fw
	}

	if cfg.App.AdminAPIKey == "" {
		log.WarnContext(ctx, "ADMIN_API_KEY is empty, merchant routes reject every request")
	}
	api := billinghttp.New(billinghttp.Options{
		Webhooks:        webhooks,
		Checkout:        billing.NewCheckoutService(store, processor, log),
		Tokens:          tokens,
		Invoices:        billing.NewInvoiceService(store, generator, cfg.App.PortalURL),
		Merchants:       billing.NewMerchantService(store, log),
		MerchantAuth:    billinghttp.AdminKey(cfg.App.AdminAPIKey),
		PublicLimiter:   limiter,
		MaxWebhookBytes: cfg.App.MaxWebhookBytes,
		Logger:          log,
	})

	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.New(cfg.App.TrustedIPHeaders...).Middleware, middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, readiness...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", api.Handle())

	reconciler := billing.NewReconciler(store, metrics, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.New(cfg.HTTP, log).Run(gctx, r)
	})
	g.Go(func() error {
		return reconciler.Loop(gctx, cfg.App.ReconcileInterval)
	})
	runErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.FlushTimeout)
	defer cancel()
	if err := notifier.Flush(flushCtx); err != nil {
		log.Error("pending notifications dropped on shutdown", logger.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("substrack stopped", slog.String("version", version))
	return nil
}
