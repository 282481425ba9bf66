// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// State backends.
const (
	StateBackendFile  = "file"
	StateBackendRedis = "redis"
)

// Transcription backends.
const (
	TranscriberWhisper = "whisper"
	TranscriberGCP     = "gcp"
)

var defaultOrigins = []string{
	"http://localhost:5173",
	"https://build-better-me.vercel.app",
	"https://build-confidence-app.vercel.app",
}

// Config holds all application configuration.
type Config struct {
	Port            string
	LogLevel        string
	FrontendOrigins []string
	DBPath          string
	MaxRequestBody  int64

	State     StateConfig
	LLM       LLMConfig
	Coach     CoachConfig
	Checkin   CheckinConfig
	Voice     VoiceConfig
	RateLimit RateLimitConfig
}

// StateConfig selects where conversation state lives.
type StateConfig struct {
	Backend        string
	FilePath       string
	RedisAddr      string
	RedisKeyPrefix string
}

// LLMConfig configures the hosted model gateway.
type LLMConfig struct {
	APIKey         string
	Model          string
	FallbackModels []string
	Timeout        time.Duration
}

// CoachConfig tunes conversation behavior.
type CoachConfig struct {
	FollowupAfter   time.Duration
	HistoryLimit    int
	RequireBaseline bool
}

// CheckinConfig controls email check-ins.
type CheckinConfig struct {
	SendGridAPIKey string
	FromEmail      string
	SchedulerToken string
	AfterInactive  time.Duration
	Cooldown       time.Duration
	Schedule       string // cron expression, empty disables the in-process scheduler
}

// VoiceConfig controls audio upload and transcription.
type VoiceConfig struct {
	Transcriber     string
	WhisperBin      string
	WhisperModel    string
	WhisperLanguage string
	FFmpegBin       string
	SpeechLanguage  string
	MinBytes        int64
	MaxBytes        int64
}

// RateLimitConfig holds per-user request throttling settings.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GOOGLE_API_KEY", "")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		FrontendOrigins: getEnvList("FRONTEND_ORIGINS", defaultOrigins),
		DBPath:          getEnv("DB_PATH", "./data/betterme.db"),
		MaxRequestBody:  getEnvInt64("MAX_REQUEST_BODY", 1<<20),
		State: StateConfig{
			Backend:        strings.ToLower(getEnv("STATE_BACKEND", StateBackendFile)),
			FilePath:       getEnv("STATE_FILE", "./data/user_state.json"),
			RedisAddr:      getEnv("REDIS_ADDR", ""),
			RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "betterme:state:"),
		},
		LLM: LLMConfig{
			APIKey:         apiKey,
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			FallbackModels: getEnvList("GEMINI_FALLBACK_MODELS", []string{"gemini-2.5-flash-lite", "gemini-2.0-flash"}),
			Timeout:        getEnvDuration("LLM_TIMEOUT", 45*time.Second),
		},
		Coach: CoachConfig{
			FollowupAfter:   getEnvHours("FOLLOWUP_HOURS", 24),
			HistoryLimit:    getEnvInt("HISTORY_LIMIT", 80),
			RequireBaseline: getEnvBool("REQUIRE_BASELINE", true),
		},
		Checkin: CheckinConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("FROM_EMAIL", ""),
			SchedulerToken: getEnv("SCHEDULER_TOKEN", ""),
			AfterInactive:  getEnvHours("CHECKIN_AFTER_HOURS", 12),
			Cooldown:       getEnvHours("EMAIL_COOLDOWN_HOURS", 12),
			Schedule:       getEnv("CHECKIN_SCHEDULE", ""),
		},
		Voice: VoiceConfig{
			Transcriber:     strings.ToLower(getEnv("TRANSCRIBER", TranscriberWhisper)),
			WhisperBin:      getEnv("WHISPER_BIN", "whisper"),
			WhisperModel:    getEnv("WHISPER_MODEL", "base"),
			WhisperLanguage: getEnv("WHISPER_LANGUAGE", "en"),
			FFmpegBin:       getEnv("FFMPEG_BIN", "ffmpeg"),
			SpeechLanguage:  getEnv("SPEECH_LANGUAGE", "en-US"),
			MinBytes:        getEnvInt64("VOICE_MIN_BYTES", 1024),
			MaxBytes:        getEnvInt64("VOICE_MAX_BYTES", 25<<20),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	switch c.State.Backend {
	case StateBackendFile:
		if c.State.FilePath == "" {
			return fmt.Errorf("STATE_FILE cannot be empty")
		}
	case StateBackendRedis:
		if c.State.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STATE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.State.Backend)
	}
	switch c.Voice.Transcriber {
	case TranscriberWhisper, TranscriberGCP:
	default:
		return fmt.Errorf("unknown TRANSCRIBER %q", c.Voice.Transcriber)
	}
	if c.Coach.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Voice.MinBytes < 0 || c.Voice.MaxBytes <= c.Voice.MinBytes {
		return fmt.Errorf("VOICE_MAX_BYTES must exceed VOICE_MIN_BYTES")
	}
	return nil
}

// Models returns the preference-ordered model list: primary first, no duplicates.
func (c LLMConfig) Models() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range append([]string{c.Model}, c.FallbackModels...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvHours accepts fractional hours ("0.5") like the original deployment env files.
func getEnvHours(key string, fallback float64) time.Duration {
	hours := fallback
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && f > 0 {
			hours = f
		}
	}
	return time.Duration(hours * float64(time.Hour))
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
