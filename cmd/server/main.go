package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/phxgg/kickbridge/internal/adapter/httpserver"
	"github.com/phxgg/kickbridge/internal/adapter/postgres"
	redisadapter "github.com/phxgg/kickbridge/internal/adapter/redis"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/events"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/phxgg/kickbridge/internal/platform/config"
	"github.com/phxgg/kickbridge/internal/platform/logging"
	"github.com/phxgg/kickbridge/internal/platform/retry"
	"github.com/phxgg/kickbridge/internal/session"
	"github.com/phxgg/kickbridge/internal/token"
)

const providerKick = "kick"

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

var connectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Connection attempt failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := retry.Do(ctx, connectPolicy, nil, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redisadapter.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := redisadapter.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}

	if err := retry.DoVoid(ctx, connectPolicy, nil, func() error {
		return client.Ping(ctx)
	}); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	return client
}

func registerEventHandlers(router *events.Router) {
	router.Handle(domain.EventLivestreamStatusUpdated, func(_ context.Context, payload json.RawMessage) error {
		var status struct {
			IsLive bool   `json:"is_live"`
			Title  string `json:"title"`
		}
		if err := json.Unmarshal(payload, &status); err != nil {
			return err
		}
		slog.Info("Livestream status changed", "is_live", status.IsLive, "title", status.Title)
		return nil
	})

	router.Handle(domain.EventModerationBanned, func(_ context.Context, payload json.RawMessage) error {
		var ban struct {
			BannedUser struct {
				Username string `json:"username"`
			} `json:"banned_user"`
		}
		if err := json.Unmarshal(payload, &ban); err != nil {
			return err
		}
		slog.Info("User banned in channel", "username", ban.BannedUser.Username)
		return nil
	})
}

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	accounts := postgres.NewAccountRepo(pool)
	ledger := redisadapter.NewTokenLedger(redisClient.Underlying(), clock)

	tokens := token.NewService(token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.JWTAccessExpiry,
		RefreshTTL:    cfg.JWTRefreshExpiry,
		Provider:      providerKick,
	}, ledger, clock)

	oauthClient := kick.NewOAuthClient(cfg.KickClientID, cfg.KickClientSecret, cfg.KickCallbackURL, cfg.KickOAuthBaseURL)

	keyCache := kick.NewPublicKeyCache(kick.NewHTTPKeyFetcher(cfg.KickAPIBaseURL), cfg.PublicKeyCacheTTL, clock)
	verifier := kick.NewSignatureVerifier(keyCache)

	refresher := session.NewRefresher(accounts, oauthClient, cfg.KickAPIBaseURL, clock)

	registry := events.NewRegistry()
	router := events.NewRouter(registry)
	registerEventHandlers(router)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: redisClient.Ping},
	}

	srv := httpserver.NewServer(cfg, tokens, refresher, oauthClient, verifier, router, registry, accounts, healthChecks)

	done := runGracefulShutdown(srv)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
