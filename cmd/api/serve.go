package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/inaiurai/marketplace/internal/auth"
	"github.com/inaiurai/marketplace/internal/config"
	"github.com/inaiurai/marketplace/internal/db"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/handlers"
	"github.com/inaiurai/marketplace/internal/idempotency"
	"github.com/inaiurai/marketplace/internal/ledger"
	"github.com/inaiurai/marketplace/internal/ratelimit"
	"github.com/inaiurai/marketplace/internal/registry"
	"github.com/inaiurai/marketplace/internal/repository"
	"github.com/inaiurai/marketplace/internal/router"
	"github.com/inaiurai/marketplace/internal/services"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background job workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn("JWT_SECRET is not set, using the development secret")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres (is it running? try docker compose up -d): %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if err := db.Migrate(ctx, pool, logger); err != nil {
		return err
	}

	rdb, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info("connected to redis")
	} else {
		logger.Warn("REDIS_URL is not set: idempotency keys are ignored and message rate limits are per process")
	}

	var limiter ratelimit.Limiter = ratelimit.NewLocal(cfg.MessageRateLimit, cfg.MessageRateWindow)
	if rdb != nil {
		limiter = ratelimit.NewRedis(rdb, cfg.MessageRateLimit, cfg.MessageRateWindow, logger)
	}

	inputs, err := services.NewValidator(cfg.SchemaDir)
	if err != nil {
		return fmt.Errorf("load structured_inputs schemas from %s: %w", cfg.SchemaDir, err)
	}

	// The queue is handed to the services before the River client exists;
	// the client's workers need those services in turn.
	queue := execution.NewQueue()
	deps := &services.Deps{
		DB:       pool,
		Tasks:    repository.NewTaskRepo(),
		Bookings: repository.NewBookingRepo(),
		Bids:     repository.NewBidRepo(),
		EventLog: repository.NewEventRepo(),
		Disputes: repository.NewDisputeRepo(),
		Reviews:  repository.NewReviewRepo(),
		Ledger:   ledger.NewService(ledger.NewRepository()),
		Jobs:     queue,
		Logger:   logger,
	}
	taskSvc := services.NewTaskService(deps, inputs)
	bidSvc := services.NewBidService(deps, limiter)
	bookingSvc := services.NewBookingService(deps)
	disputeSvc := services.NewDisputeService(deps)
	reviewSvc := services.NewReviewService(deps)

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	registrySvc := registry.NewService(registry.NewRepository(pool))
	dispatcher := services.NewDispatcher(taskSvc, services.NewMatcher(registrySvc), cfg.MatchLimit, logger)

	riverClient, err := newRiverClient(pool, cfg, dispatcher, logger)
	if err != nil {
		return err
	}
	queue.SetInserter(riverClient)

	api := router.New(router.Handlers{
		Auth:     auth.NewHandler(authSvc, logger),
		Registry: registry.NewHandler(registrySvc, logger),
		Tasks:    handlers.NewTaskHandler(taskSvc, bidSvc, inputs, logger),
		Bids:     handlers.NewBidHandler(bidSvc, logger),
		Bookings: handlers.NewBookingHandler(bookingSvc, logger),
		Disputes: handlers.NewDisputeHandler(disputeSvc, reviewSvc, logger),
		Admin:    handlers.NewAdminHandler(taskSvc, disputeSvc, logger),
	}, router.Options{
		Tokens:         authSvc,
		Idempotency:    idempotency.NewStore(redisOrNil(rdb), cfg.IdempotencyTTL, logger),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Ping:           pool.Ping,
		Logger:         logger,
	})

	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river: %w", err)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		logger.Error("river shutdown", "error", err)
	}
	return nil
}

func newRiverClient(pool *pgxpool.Pool, cfg *config.Config, dispatcher execution.CandidateDispatcher, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewNotifyWorker(cfg.NotifyWebhookURL, logger))
	river.AddWorker(workers, execution.NewMatchCandidatesWorker(dispatcher))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}

// connectRedis returns nil when url is empty. Redis is optional; a
// configured but unreachable server is an error.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// redisOrNil keeps a nil *redis.Client from becoming a non-nil interface.
func redisOrNil(c *redis.Client) redis.UniversalClient {
	if c == nil {
		return nil
	}
	return c
}
