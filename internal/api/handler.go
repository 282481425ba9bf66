// Package api provides HTTP handlers for the Better Me API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/betterme/internal/coach"
	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/metrics"
	"github.com/ashureev/betterme/internal/notify"
	"github.com/ashureev/betterme/internal/store"
	"github.com/ashureev/betterme/internal/transcribe"
)

// ChatService runs conversation turns.
type ChatService interface {
	Chat(ctx context.Context, req coach.ChatRequest) (*coach.ChatResponse, error)
	History(ctx context.Context, userID, topic string) (*coach.HistoryResponse, error)
}

// CheckinService records activity and runs check-in batches.
type CheckinService interface {
	RecordActivity(ctx context.Context, a domain.Activity) error
	Authorize(token string) error
	RunCheckins(ctx context.Context) (*notify.RunResult, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Repo        store.Repository
	States      store.StateStore // checked by /health when it is a store.Pinger
	Chat        ChatService
	Checkins    CheckinService
	Transcriber transcribe.Transcriber // nil disables /chat/voice
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Options bound request sizes and rates.
type Options struct {
	MaxRequestBody int64
	VoiceMinBytes  int64
	VoiceMaxBytes  int64
	Limiter        *RateLimiter // nil disables throttling
}

// Handler serves every API route.
type Handler struct {
	deps Deps
	opts Options
}

// NewHandler creates a Handler.
func NewHandler(deps Deps, opts Options) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.MaxRequestBody <= 0 {
		opts.MaxRequestBody = 1 << 20
	}
	return &Handler{deps: deps, opts: opts}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics.Handler())
	}

	r.Post("/chat", h.Chat)
	r.Get("/chat/history", h.History)
	r.Post("/chat/voice", h.Voice)

	r.Post("/notify/activity", h.Activity)
	r.Post("/notify/run-checkins", h.RunCheckins)

	r.Post("/users/login", h.Login)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// allow applies the per-user limiter and writes 429 when it trips.
func (h *Handler) allow(w http.ResponseWriter, userID string) bool {
	userID = strings.TrimSpace(userID)
	if h.opts.Limiter == nil || userID == "" || h.opts.Limiter.Allow(userID) {
		return true
	}
	Error(w, http.StatusTooManyRequests, "rate limit exceeded, slow down a little")
	return false
}
