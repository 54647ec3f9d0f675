// Agent Console API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/agent-console/internal/api"
	"github.com/ashureev/agent-console/internal/config"
	"github.com/ashureev/agent-console/internal/identity"
	"github.com/ashureev/agent-console/internal/middleware"
	"github.com/ashureev/agent-console/internal/store"
	"github.com/ashureev/agent-console/internal/upstream"
	"github.com/ashureev/agent-console/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "config", cfg.String(), "dev", cfg.IsDevelopment())
	if cfg.UsesPlaceholderCredentials() {
		slog.Warn("CLIENT_ID/CLIENT_SECRET are placeholders; only the demo login will work against a real upstream")
	}

	// Initialize dependencies.
	repo, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store ready", "persistent", cfg.DBPath != "")

	client := upstream.NewClient(upstream.API{
		BaseURL:   cfg.Upstream.BaseURL,
		TokenPath: cfg.Upstream.TokenPath,
		ListPath:  cfg.Upstream.ListPath,
		AddPath:   cfg.Upstream.AddPath,
		EditPath:  cfg.Upstream.EditPath,
	}, upstream.Credentials{
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		Scope:        cfg.Upstream.Scope,
	}, cfg.Upstream.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loginLimiter := middleware.NewRateLimiter(ctx, cfg.Login.RateLimit, cfg.Login.RateWindow)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, client, cfg)
	healthHandler := api.NewHealthHandler(repo)
	authHandler := api.NewAuthHandler(baseHandler, loginLimiter.Limit(identity.IPFromRequest))
	agentHandler := api.NewAgentHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)

	if cfg.StaticDir != "" {
		r.Handle("/*", web.SPAHandler(cfg.StaticDir))
		slog.Info("Serving frontend", "dir", cfg.StaticDir)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Upstream.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
