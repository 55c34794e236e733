package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/tasklight/tasklight-api/internal/cache"
	"github.com/tasklight/tasklight-api/internal/config"
	"github.com/tasklight/tasklight-api/internal/platform/postgres"
	"github.com/tasklight/tasklight-api/internal/platform/redis"
	"github.com/tasklight/tasklight-api/internal/ratelimit"
	"github.com/tasklight/tasklight-api/internal/service"
	"github.com/tasklight/tasklight-api/internal/service/auth"
	"github.com/tasklight/tasklight-api/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Shared KV store (cache + rate-limit windows)
	kvStore cache.Store

	// Stores (using interfaces for proper abstraction)
	userStore store.UserStore
	taskStore store.TaskStore

	// Service interfaces
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	taskService      *service.TaskService

	// Rate limiting
	limiter *ratelimit.Limiter
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize JWT service
	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	// Initialize password verifier
	app.passwordVerifier = auth.NewBcryptVerifier()

	// Initialize stores
	app.userStore = postgres.NewPostgresUserStore(db, cfg.Auth.BcryptCost, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)

	// Initialize the shared Redis-backed KV store. The task list cache and
	// the rate limiter both live on it; if it is unreachable the cache
	// misses and the limiter fails open.
	app.kvStore = redis.NewStore(cfg.Redis, logger)
	logger.Info("Redis store initialized", "addr", cfg.Redis.Addr)

	// Initialize rate limiter
	app.limiter = ratelimit.NewLimiter(app.kvStore, logger)

	// Initialize task service with its read-through list cache
	taskCache := service.NewTaskCache(app.kvStore, logger)
	app.taskService = service.NewTaskService(app.taskStore, taskCache, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	err := app.startHTTPServer(ctx, router)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// policy builds a ratelimit.Policy from its configuration.
func policy(cfg config.RateLimitPolicyConfig) ratelimit.Policy {
	return ratelimit.Policy{
		Window: time.Duration(cfg.WindowSeconds) * time.Second,
		Max:    cfg.MaxRequests,
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	if closer, ok := app.kvStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("Error closing Redis connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
