package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// WhisperConfig locates the local binaries.
type WhisperConfig struct {
	WhisperBin string
	FFmpegBin  string
	Model      string
	Language   string
}

// Whisper transcribes with the whisper CLI after normalizing audio with ffmpeg.
type Whisper struct {
	cfg    WhisperConfig
	run    runFunc
	logger *slog.Logger
}

// NewWhisper creates a Whisper transcriber.
func NewWhisper(cfg WhisperConfig, logger *slog.Logger) *Whisper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WhisperBin == "" {
		cfg.WhisperBin = "whisper"
	}
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	return &Whisper{cfg: cfg, run: execRun, logger: logger.With("component", "whisper")}
}

// Name implements Transcriber.
func (w *Whisper) Name() string { return "whisper" }

// Transcribe implements Transcriber.
func (w *Whisper) Transcribe(ctx context.Context, audio Audio) (string, error) {
	dir, err := os.MkdirTemp("", "betterme-voice-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input"+audio.Ext())
	if err := os.WriteFile(input, audio.Data, 0o600); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}

	wav := filepath.Join(dir, "voice.wav")
	if out, err := w.run(ctx, w.cfg.FFmpegBin, "-y", "-i", input, "-ar", "16000", "-ac", "1", wav); err != nil {
		return "", w.commandError("ffmpeg", out, err)
	}

	args := []string{wav, "--model", w.cfg.Model, "--output_format", "txt", "--output_dir", dir}
	if w.cfg.Language != "" {
		args = append(args, "--language", w.cfg.Language)
	}
	if out, err := w.run(ctx, w.cfg.WhisperBin, args...); err != nil {
		return "", w.commandError("whisper", out, err)
	}

	text, err := os.ReadFile(filepath.Join(dir, "voice.txt"))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return strings.Join(strings.Fields(string(text)), " "), nil
}

func (w *Whisper) commandError(tool string, out []byte, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrToolMissing, tool, err)
	}
	w.logger.Warn("Transcription command failed", "tool", tool, "output", tail(out, 500), "error", err)
	return fmt.Errorf("%s: %w", tool, err)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
