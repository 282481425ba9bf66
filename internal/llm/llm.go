// Package llm wraps hosted text generation behind a small interface with
// ordered model fallback.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/betterme/internal/metrics"
)

var (
	// ErrNotConfigured is returned when no API key was provided.
	ErrNotConfigured = errors.New("llm: not configured")
	// ErrAllModelsFailed is returned after every candidate model failed.
	ErrAllModelsFailed = errors.New("llm: all models failed")
	// ErrEmptyResponse marks a model reply with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Request is one generation call.
type Request struct {
	System          string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelCaller performs a single call against a named model.
type ModelCaller interface {
	Call(ctx context.Context, model string, req Request) (string, error)
}

// Gateway tries each model in order and returns the first non-empty reply.
type Gateway struct {
	caller  ModelCaller
	models  []string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGateway builds a Gateway. A nil caller makes every call fail with ErrNotConfigured.
func NewGateway(caller ModelCaller, models []string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		caller:  caller,
		models:  models,
		timeout: timeout,
		logger:  logger.With("component", "llm"),
		metrics: m,
	}
}

// Generate implements Generator.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	if g.caller == nil || len(g.models) == 0 {
		return "", ErrNotConfigured
	}

	var lastErr error
	for _, model := range g.models {
		text, err := g.callOnce(ctx, model, req)
		if err == nil {
			g.metrics.ObserveLLMCall(model, "ok")
			return text, nil
		}

		lastErr = err
		g.metrics.ObserveLLMCall(model, outcome(err))
		g.logger.Warn("Model call failed, trying next", "model", model, "error", err)

		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
}

func (g *Gateway) callOnce(ctx context.Context, model string, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.caller.Call(ctx, model, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func outcome(err error) string {
	switch {
	case IsQuotaError(err):
		return "quota"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}

// IsQuotaError reports whether err looks like a rate-limit or quota rejection.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota") ||
		strings.Contains(msg, "429")
}
