package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCheckSize(t *testing.T) {
	assert.ErrorIs(t, CheckSize(0, 0, 100), ErrAudioTooSmall)
	assert.ErrorIs(t, CheckSize(10, 400, 1000), ErrAudioTooSmall)
	assert.ErrorIs(t, CheckSize(2000, 400, 1000), ErrAudioTooLarge)
	assert.NoError(t, CheckSize(500, 400, 1000))
	assert.NoError(t, CheckSize(5000, 400, 0))
}

func TestAudioExt(t *testing.T) {
	assert.Equal(t, ".m4a", Audio{Filename: "note.M4A"}.Ext())
	assert.Equal(t, ".ogg", Audio{MIMEType: "audio/ogg; codecs=opus"}.Ext())
	assert.Equal(t, ".webm", Audio{Filename: "blob"}.Ext())
}

// fakeTools writes the files ffmpeg and whisper would produce.
func fakeTools(t *testing.T, transcript string) (runFunc, *[]string) {
	var calls []string
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name)
		switch name {
		case "ffmpeg":
			out := args[len(args)-1]
			return nil, os.WriteFile(out, []byte("RIFF"), 0o600)
		case "whisper":
			var dir string
			for i, a := range args {
				if a == "--output_dir" {
					dir = args[i+1]
				}
			}
			require.NotEmpty(t, dir)
			return nil, os.WriteFile(filepath.Join(dir, "voice.txt"), []byte(transcript), 0o600)
		}
		return nil, errors.New("unexpected command " + name)
	}, &calls
}

func TestWhisperTranscribe(t *testing.T) {
	w := NewWhisper(WhisperConfig{Language: "en"}, nil)
	run, calls := fakeTools(t, "  I want to\n prepare for   my interview \n")
	w.run = run

	text, err := w.Transcribe(context.Background(), Audio{Data: []byte("audio"), Filename: "a.webm"})
	require.NoError(t, err)
	assert.Equal(t, "I want to prepare for my interview", text)
	assert.Equal(t, []string{"ffmpeg", "whisper"}, *calls)
}

func TestWhisperMissingBinary(t *testing.T) {
	w := NewWhisper(WhisperConfig{}, nil)
	w.run = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}

	_, err := w.Transcribe(context.Background(), Audio{Data: []byte("audio")})
	assert.ErrorIs(t, err, ErrToolMissing)
}

func TestWhisperCommandFailure(t *testing.T) {
	w := NewWhisper(WhisperConfig{}, nil)
	w.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found"), errors.New("exit status 1")
	}

	_, err := w.Transcribe(context.Background(), Audio{Data: []byte("audio")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrToolMissing)
}

func newTestSpeech(fn recognizeFunc) *CloudSpeech {
	return &CloudSpeech{recognize: fn, timeout: 5 * time.Second, logger: slog.Default()}
}

func TestCloudSpeechJoinsResults(t *testing.T) {
	var got *speechpb.RecognizeRequest
	c := newTestSpeech(func(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " hello "}}},
			{},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "coach"}}},
		}}, nil
	})

	text, err := c.Transcribe(context.Background(), Audio{Data: []byte("x"), MIMEType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, "hello coach", text)
	assert.Equal(t, speechpb.RecognitionConfig_WEBM_OPUS, got.GetConfig().GetEncoding())
	assert.Equal(t, "en-US", got.GetConfig().GetLanguageCode())
}

func TestCloudSpeechRetriesTransientOnce(t *testing.T) {
	calls := 0
	c := newTestSpeech(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		calls++
		return nil, status.Error(codes.Unavailable, "try later")
	})
	c.timeout = 10 * time.Second

	_, err := c.Transcribe(context.Background(), Audio{Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestCloudSpeechDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	c := newTestSpeech(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		calls++
		return nil, status.Error(codes.InvalidArgument, "bad audio")
	})

	_, err := c.Transcribe(context.Background(), Audio{Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}
