// Package app builds the service graph shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/betterme/internal/coach"
	"github.com/ashureev/betterme/internal/config"
	"github.com/ashureev/betterme/internal/llm"
	"github.com/ashureev/betterme/internal/metrics"
	"github.com/ashureev/betterme/internal/notify"
	"github.com/ashureev/betterme/internal/store"
	"github.com/ashureev/betterme/internal/transcribe"
)

// OpenStateStore returns the configured conversation state backend.
func OpenStateStore(cfg *config.Config, logger *slog.Logger) (store.StateStore, error) {
	switch cfg.State.Backend {
	case config.StateBackendRedis:
		rs, err := store.NewRedisStateStore(cfg.State.RedisAddr, cfg.State.RedisKeyPrefix, logger)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case config.StateBackendFile:
		fs, err := store.NewFileStateStore(cfg.State.FilePath, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// NewGenerator returns the Gemini gateway. Without an API key every call
// fails with llm.ErrNotConfigured and the coach falls back to canned replies.
func NewGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) llm.Generator {
	var caller llm.ModelCaller
	gemini, err := llm.NewGeminiCaller(ctx, cfg.LLM.APIKey)
	switch {
	case err == nil:
		caller = gemini
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("GEMINI_API_KEY not set, coach replies will use fallbacks")
	default:
		logger.Error("Failed to create Gemini client, coach replies will use fallbacks", "error", err)
	}
	return llm.NewGateway(caller, cfg.LLM.Models(), cfg.LLM.Timeout, logger, m)
}

// NewCoach wires the conversation service.
func NewCoach(states store.StateStore, gen llm.Generator, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *coach.Service {
	return coach.NewService(states, gen, coach.DefaultCatalog(), coach.Options{
		HistoryLimit:    cfg.Coach.HistoryLimit,
		FollowupAfter:   cfg.Coach.FollowupAfter,
		RequireBaseline: cfg.Coach.RequireBaseline,
	}, logger, m)
}

// NewCheckins wires the check-in service. A missing SendGrid configuration is
// logged and every send then fails.
func NewCheckins(repo store.Repository, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *notify.Service {
	var mailer notify.Mailer
	sg, err := notify.NewSendGridMailer(cfg.Checkin.SendGridAPIKey, cfg.Checkin.FromEmail)
	if err != nil {
		logger.Warn("Check-in emails disabled", "reason", err)
	} else {
		mailer = sg
	}
	return notify.NewService(repo, mailer, notify.Options{
		AfterInactive:  cfg.Checkin.AfterInactive,
		Cooldown:       cfg.Checkin.Cooldown,
		SchedulerToken: cfg.Checkin.SchedulerToken,
	}, logger, m)
}

// NewTranscriber returns the configured transcription backend and a cleanup func.
func NewTranscriber(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transcribe.Transcriber, func() error, error) {
	switch cfg.Voice.Transcriber {
	case config.TranscriberGCP:
		cs, err := transcribe.NewCloudSpeech(ctx, cfg.Voice.SpeechLanguage, logger, transcribe.ClientOptionsFromEnv()...)
		if err != nil {
			return nil, nil, err
		}
		return cs, cs.Close, nil
	case config.TranscriberWhisper:
		w := transcribe.NewWhisper(transcribe.WhisperConfig{
			WhisperBin: cfg.Voice.WhisperBin,
			FFmpegBin:  cfg.Voice.FFmpegBin,
			Model:      cfg.Voice.WhisperModel,
			Language:   cfg.Voice.WhisperLanguage,
		}, logger)
		return w, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transcriber %q", cfg.Voice.Transcriber)
	}
}
