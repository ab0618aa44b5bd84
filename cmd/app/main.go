// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/config"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/domain/ports/repository"
	"checkout-confirmation/internal/infra/adapters/billing"
	"checkout-confirmation/internal/infra/adapters/notify"
	"checkout-confirmation/internal/infra/api"
	"checkout-confirmation/internal/infra/cache"
	pg "checkout-confirmation/internal/infra/db/postgres"
	"checkout-confirmation/internal/infra/logging"
	"checkout-confirmation/internal/infra/memory"
	"checkout-confirmation/internal/infra/metrics"
	red "checkout-confirmation/internal/infra/redis"
	"checkout-confirmation/internal/infra/scheduler"
	"checkout-confirmation/internal/infra/worker"
	"checkout-confirmation/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted ids)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Client state store ----
	store, limiter, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("client state store")
	}
	defer closeStore()

	// ---- Adapters ----
	backend := billing.NewClient(cfg.Billing.BaseURL, cfg.Billing.Timeout, logger)

	var notifier adapter.Notifier = notify.NewNoopNotifier(logger)
	if cfg.Postmark.ServerToken != "" {
		pm, err := notify.NewPostmarkNotifier(notify.PostmarkConfig{
			ServerToken:  cfg.Postmark.ServerToken,
			AccountToken: cfg.Postmark.AccountToken,
			From:         cfg.Postmark.From,
			SupportEmail: cfg.Flow.SupportEmail,
			AppURL:       cfg.Server.PublicURL,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postmark")
		}
		notifier = pm
	} else {
		logger.Warn().Msg("postmark.server_token not set; activation emails are disabled")
	}

	pool := worker.NewPool("email", cfg.Worker.Size, cfg.Worker.Queue, 30*time.Second, logger)
	pool.Start(ctx)
	defer pool.Stop()

	subCache := cache.NewSubscriptionCache(cfg.Flow.SubscriptionTTL, logger)
	subCache.OnPublish(func(accountID string, sub model.Subscription) {
		metrics.IncSubscriptionChanged(string(sub.Status))
		logger.Info().
			Str("account_id", logging.RedactID(accountID)).
			Str("plan", sub.Plan).
			Str("status", string(sub.Status)).
			Msg("subscription changed")
	})

	// ---- Use cases ----
	clock := usecase.RealClock()
	verifier := usecase.NewVerificationUseCase(
		backend,
		notifier,
		pool,
		usecase.RetryPolicy{
			MaxRetries:     cfg.Verify.MaxRetries,
			Delay:          cfg.Verify.RetryDelay,
			AttemptTimeout: cfg.Billing.Timeout,
		},
		clock,
		logger,
	)
	poller := usecase.NewPollerUseCase(backend, usecase.PollerConfig{
		Interval:      cfg.Poll.Interval,
		Timeout:       cfg.Poll.Timeout,
		RedirectAfter: cfg.Poll.RedirectAfter,
	}, clock, logger)
	guard := usecase.NewGuardUseCase(store, backend, usecase.GuardConfig{
		LoginPath:   cfg.Flow.LoginPath,
		DefaultPath: cfg.Flow.SuccessPath,
		HandoffTTL:  cfg.Flow.HandoffTTL,
	}, clock, logger)
	reconciler := usecase.NewReconcileUseCase(backend, backend, subCache, logger)
	confirmUC := usecase.NewConfirmationUseCase(verifier, poller, guard, reconciler, backend, usecase.ConfirmationConfig{
		SupportEmail: cfg.Flow.SupportEmail,
		PlansPath:    cfg.Flow.PlansPath,
		SuccessPath:  cfg.Flow.SuccessPath,
	}, logger)

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.CookieName, cfg.Server.CookieSecure, 0)
	srv := api.NewServer(confirmUC, guard, reconciler, auth, limiter, api.Options{
		CookieSecure:   cfg.Server.CookieSecure,
		LoginPath:      cfg.Flow.LoginPath,
		PlansPath:      cfg.Flow.PlansPath,
		RatePerHour:    cfg.Verify.RatePerHour,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("store", cfg.Store.Driver).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	// Cancelling ctx first tears down in-flight UPI polls so Shutdown does not
	// wait out the long-poll.
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

// buildStore selects the handoff store. The rate limiter is only available
// with Redis; the returned close func is always safe to call.
func buildStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.ClientStateStore, api.RateLimiter, func(), error) {
	switch cfg.Store.Driver {
	case "redis":
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis: %w", err)
		}
		return red.NewClientStateStore(client, "checkout:"), red.NewRateLimiter(client), func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		repo := pg.NewClientStateRepo(pool)
		purge := scheduler.NewScheduler("purge_client_state", 10*time.Minute, repo.PurgeExpired, logger)
		purge.Start(ctx)
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)
		return repo, nil, func() { purge.Stop(); pool.Close() }, nil

	default:
		logger.Warn().Msg("using in-memory client state; handoffs are lost on restart and not shared between instances")
		return memory.NewClientStateStore(10 * time.Minute), nil, func() {}, nil
	}
}
