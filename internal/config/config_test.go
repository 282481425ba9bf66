package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STATE_BACKEND", "file")
	t.Setenv("TRANSCRIBER", "whisper")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 12*time.Hour, cfg.Checkin.AfterInactive)
	assert.Equal(t, 24*time.Hour, cfg.Coach.FollowupAfter)
	assert.True(t, cfg.Coach.RequireBaseline)
	assert.Contains(t, cfg.FrontendOrigins, "http://localhost:5173")
}

func TestLoadGoogleKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
}

func TestFractionalHours(t *testing.T) {
	t.Setenv("CHECKIN_AFTER_HOURS", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Checkin.AfterInactive)
}

func TestValidateRedisNeedsAddr(t *testing.T) {
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestValidateUnknownTranscriber(t *testing.T) {
	t.Setenv("TRANSCRIBER", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
}

func TestModelsDeduplicatesAndKeepsOrder(t *testing.T) {
	c := LLMConfig{Model: "a", FallbackModels: []string{"b", "a", " ", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, c.Models())
}
