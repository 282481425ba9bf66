// Package transcribe turns uploaded voice notes into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrAudioTooSmall is returned for uploads below the configured minimum.
	ErrAudioTooSmall = errors.New("audio upload too small")
	// ErrAudioTooLarge is returned for uploads above the configured maximum.
	ErrAudioTooLarge = errors.New("audio upload too large")
	// ErrToolMissing is returned when a required binary is not installed.
	ErrToolMissing = errors.New("transcription tool not installed")
)

// InstallHint is shown to clients when local transcription cannot run.
const InstallHint = "Voice transcription failed. Make sure ffmpeg and whisper are installed on the server."

// Audio is one uploaded recording.
type Audio struct {
	Data     []byte
	Filename string
	MIMEType string
}

// Ext returns the file extension to use when writing the audio to disk.
func (a Audio) Ext() string {
	if ext := strings.ToLower(filepath.Ext(a.Filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	m := strings.ToLower(a.MIMEType)
	switch {
	case strings.Contains(m, "wav"):
		return ".wav"
	case strings.Contains(m, "ogg"):
		return ".ogg"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return ".mp3"
	case strings.Contains(m, "mp4"), strings.Contains(m, "m4a"):
		return ".m4a"
	default:
		return ".webm"
	}
}

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
	Name() string
}

// CheckSize validates an upload against the configured bounds.
func CheckSize(n, minBytes, maxBytes int64) error {
	if n == 0 || n < minBytes {
		return fmt.Errorf("%w: %d bytes", ErrAudioTooSmall, n)
	}
	if maxBytes > 0 && n > maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrAudioTooLarge, n)
	}
	return nil
}
