package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tasklight/tasklight-api/internal/api"
	apiMiddleware "github.com/tasklight/tasklight-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. It accepts the application dependencies to create handlers
// and register routes. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	// Create a router
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	// Create API handlers using the application's services
	tokenLifetime := time.Duration(app.config.Auth.TokenLifetimeMinutes) * time.Minute
	authHandler := api.NewAuthHandler(
		app.userStore,
		app.jwtService,
		app.passwordVerifier,
		tokenLifetime,
	)
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	// Rate-limit middleware, one per policy. The auth policy keys on
	// (IP, submitted email) and forgives successful attempts.
	apiLimit := apiMiddleware.NewRateLimitMiddleware(
		app.limiter, policy(app.config.RateLimit.API), apiMiddleware.IPOrUserKey)
	authLimit := apiMiddleware.NewRateLimitMiddleware(
		app.limiter, policy(app.config.RateLimit.Auth), apiMiddleware.AuthKey).
		WithForgiveOnSuccess()
	taskCreateLimit := apiMiddleware.NewRateLimitMiddleware(
		app.limiter, policy(app.config.RateLimit.Task), apiMiddleware.IPOrUserKey)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Group(func(r chi.Router) {
			r.Use(authLimit.Limit)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.RefreshToken)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(apiLimit.Limit)

			// Task endpoints
			r.Get("/tasks", taskHandler.GetTasks)
			r.Get("/tasks/filter", taskHandler.GetFilteredTasks)
			r.Put("/tasks/{id}", taskHandler.UpdateTask)
			r.Delete("/tasks/{id}", taskHandler.DeleteTask)

			// Task creation carries its own tighter limit on top of the
			// general API limit.
			r.With(taskCreateLimit.Limit).Post("/tasks", taskHandler.CreateTask)
		})
	})

	// Health check endpoint. Only the database gates readiness: the cache
	// and limiter degrade gracefully without Redis, so its state is reported
	// but never fails the check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		if err := app.db.PingContext(ctx); err != nil {
			app.logger.Error("Health check database ping failed", "error", err)
			status = http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}

		cacheStatus := "ok"
		if !app.kvStore.Ready(ctx) {
			cacheStatus = "unavailable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"database": dbStatus,
			"cache":    cacheStatus,
		}); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
