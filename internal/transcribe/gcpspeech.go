package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ashureev/betterme/internal/shared"
)

var speechRetryPolicy = shared.RetryPolicy{Attempts: 2, BaseDelay: 750 * time.Millisecond, Retryable: isTransientSpeechError}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// CloudSpeech transcribes short recordings with Google Cloud Speech-to-Text.
type CloudSpeech struct {
	recognize recognizeFunc
	closeFn   func() error
	language  string
	timeout   time.Duration
	logger    *slog.Logger
}

// ClientOptionsFromEnv reads service account credentials from
// GOOGLE_APPLICATION_CREDENTIALS_JSON (inline) or GOOGLE_APPLICATION_CREDENTIALS (path).
// With neither set the client falls back to application default credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// NewCloudSpeech dials the Speech API.
func NewCloudSpeech(ctx context.Context, language string, logger *slog.Logger, opts ...option.ClientOption) (*CloudSpeech, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &CloudSpeech{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		closeFn:  client.Close,
		language: language,
		timeout:  time.Minute,
		logger:   logger.With("component", "cloud_speech"),
	}, nil
}

// Name implements Transcriber.
func (c *CloudSpeech) Name() string { return "gcp" }

// Transcribe implements Transcriber.
func (c *CloudSpeech) Transcribe(ctx context.Context, audio Audio) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lang := c.language
	if lang == "" {
		lang = "en-US"
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               lang,
			Encoding:                   inferEncoding(audio),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	}

	var resp *speechpb.RecognizeResponse
	err := shared.Retry(ctx, speechRetryPolicy, func() error {
		var err error
		resp, err = c.recognize(ctx, req)
		if err != nil && isTransientSpeechError(err) {
			c.logger.Warn("Speech recognize failed, retrying", "code", status.Code(err).String(), "error", err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}
	return joinTranscript(resp), nil
}

// Close releases the gRPC connection.
func (c *CloudSpeech) Close() error {
	if c == nil || c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

func isTransientSpeechError(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func inferEncoding(audio Audio) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(audio.MIMEType)
	switch ext := audio.Ext(); {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "webm") || ext == ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func joinTranscript(resp *speechpb.RecognizeResponse) string {
	if resp == nil {
		return ""
	}
	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
