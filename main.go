package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/miladnoo/Heray/config"
	"github.com/miladnoo/Heray/monitoring"
	"github.com/miladnoo/Heray/v1/auth"
	"github.com/miladnoo/Heray/v1/database"
	v1handlers "github.com/miladnoo/Heray/v1/handlers"
	"github.com/miladnoo/Heray/v1/utils"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	slog.SetDefault(logger)

	slog.Info("Starting Heray members service initialization")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownMetrics, err := monitoring.Setup(context.Background(), monitoring.Config{ServiceName: cfg.ServiceName})
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	repo, err := database.NewMemberRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize member storage", "error", err)
		os.Exit(1)
	}

	gate := auth.NewSessionGate(newVerifier(cfg), newProvider(cfg))

	adminEmails, err := cfg.LoadAdminEmails()
	if err != nil {
		slog.Error("Failed to load admin allow-list", "error", err)
		os.Exit(1)
	}
	allowList := auth.NewAllowList(adminEmails)
	if allowList.Len() == 0 {
		slog.Warn("Admin allow-list is empty; every admin request will be denied")
	} else {
		slog.Info("Admin allow-list loaded", "count", allowList.Len())
	}

	v1Handler, err := v1handlers.NewV1Handler(repo, gate, allowList)
	if err != nil {
		slog.Error("Failed to initialize V1 handler", "error", err)
		os.Exit(1)
	}

	topLevelMux := http.NewServeMux()
	v1Handler.SetupV1Routes(topLevelMux)
	topLevelMux.Handle("/health", v1Handler.HealthHandler(cfg.ServiceName))
	topLevelMux.Handle("/metrics", monitoring.Handler())
	topLevelMux.Handle("/debug", utils.PanicRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "method": r.Method})
	})))

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:        addr,
		Handler:     monitoring.HTTPMetricsMiddleware(topLevelMux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: live admin connections are long-lived
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Heray members service starting", "port", cfg.Port, "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start Heray members service", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down Heray members service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := repo.Close(); err != nil {
		slog.Error("Failed to close member storage", "error", err)
	}
	if err := shutdownMetrics(ctx); err != nil {
		slog.Error("Failed to shutdown metrics", "error", err)
	}

	slog.Info("Heray members service exited")
}

// newVerifier prefers local JWT verification and falls back to asking the auth provider
func newVerifier(cfg *config.Config) auth.TokenVerifier {
	if !cfg.AdminAuthConfigured() {
		slog.Warn("No admin session verification configured; admin routes will report no session")
		return nil
	}
	if cfg.SessionJWTSecret != "" {
		slog.Info("Admin sessions verified locally with the session JWT secret")
		return auth.NewJWTVerifier(cfg.SessionJWTSecret)
	}
	provider := newProvider(cfg)
	slog.Info("Admin sessions verified by the auth provider", "url", provider.BaseURL)
	return auth.NewProviderVerifier(provider)
}

func newProvider(cfg *config.Config) *auth.Provider {
	url := cfg.ResolvedAuthProviderURL()
	if url == "" {
		return nil
	}
	return auth.NewProvider(url, cfg.DatastoreKey, cfg.DatastoreTimeout)
}
