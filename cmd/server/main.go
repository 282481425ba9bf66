// Better Me - confidence coaching chat backend
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/betterme/internal/api"
	"github.com/ashureev/betterme/internal/app"
	"github.com/ashureev/betterme/internal/config"
	"github.com/ashureev/betterme/internal/metrics"
	"github.com/ashureev/betterme/internal/middleware"
	"github.com/ashureev/betterme/internal/notify"
	"github.com/ashureev/betterme/internal/store"
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
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"state_backend", cfg.State.Backend,
		"transcriber", cfg.Voice.Transcriber,
		"model", cfg.LLM.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	states, err := app.OpenStateStore(cfg, logger)
	if err != nil {
		slog.Error("Failed to open state store", "backend", cfg.State.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := states.Close(); closeErr != nil {
			slog.Error("Failed to close state store", "error", closeErr)
		}
	}()

	m := metrics.New()
	gen := app.NewGenerator(ctx, cfg, logger, m)
	coachSvc := app.NewCoach(states, gen, cfg, logger, m)
	checkins := app.NewCheckins(repo, cfg, logger, m)

	transcriber, closeTranscriber, err := app.NewTranscriber(ctx, cfg, logger)
	if err != nil {
		slog.Warn("Voice transcription disabled", "transcriber", cfg.Voice.Transcriber, "error", err)
	} else {
		defer func() {
			if closeErr := closeTranscriber(); closeErr != nil {
				slog.Error("Failed to close transcriber", "error", closeErr)
			}
		}()
	}

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	handler := api.NewHandler(api.Deps{
		Repo:        repo,
		States:      states,
		Chat:        coachSvc,
		Checkins:    checkins,
		Transcriber: transcriber,
		Metrics:     m,
		Logger:      logger,
	}, api.Options{
		MaxRequestBody: cfg.MaxRequestBody,
		VoiceMinBytes:  cfg.Voice.MinBytes,
		VoiceMaxBytes:  cfg.Voice.MaxBytes,
		Limiter:        limiter,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.FrontendOrigins))

	handler.RegisterRoutes(r)

	// Model calls can take up to LLM_TIMEOUT per candidate.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.Checkin.Schedule != "" {
		if err := notify.StartScheduler(ctx, checkins, cfg.Checkin.Schedule, logger); err != nil {
			slog.Error("Failed to start check-in scheduler", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("In-process check-in scheduler disabled, expecting external calls to /notify/run-checkins")
	}

	// Start server.
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
