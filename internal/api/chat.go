package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/betterme/internal/coach"
	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/transcribe"
)

// multipartMemory is how much of a voice upload is buffered in memory.
const multipartMemory = 8 << 20

// VoiceResponse is the reply to a voice upload.
type VoiceResponse struct {
	Transcript string              `json:"transcript"`
	Chat       *coach.ChatResponse `json:"chat"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req coach.ChatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if !h.allow(w, req.UserID) {
		return
	}

	resp, err := h.deps.Chat.Chat(r.Context(), req)
	if err != nil {
		h.chatError(w, req.UserID, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// History handles GET /chat/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.deps.Chat.History(r.Context(), q.Get("user_id"), q.Get("topic"))
	if err != nil {
		h.chatError(w, q.Get("user_id"), err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Voice handles POST /chat/voice: transcribe the upload, then run it as a chat turn.
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	if h.deps.Transcriber == nil {
		Error(w, http.StatusServiceUnavailable, "voice transcription is not configured")
		return
	}

	if h.opts.VoiceMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.VoiceMaxBytes+h.opts.MaxRequestBody)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "audio file is too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		Error(w, http.StatusBadRequest, coach.ErrMissingUserID.Error())
		return
	}

	var profile map[string]any
	if raw := strings.TrimSpace(r.FormValue("profile_json")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			Error(w, http.StatusBadRequest, "profile_json must be a JSON object")
			return
		}
	}

	audio, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	if !h.allow(w, userID) {
		return
	}

	backend := h.deps.Transcriber.Name()
	text, err := h.deps.Transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		h.deps.Metrics.ObserveTranscription(backend, "error")
		h.deps.Logger.Error("Transcription failed", "user_id", userID, "backend", backend, "error", err)
		msg := "Voice transcription failed. Please try again."
		if errors.Is(err, transcribe.ErrToolMissing) || backend == "whisper" {
			msg = transcribe.InstallHint
		}
		Error(w, http.StatusInternalServerError, msg)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		h.deps.Metrics.ObserveTranscription(backend, "empty")
		Error(w, http.StatusBadRequest, "Could not understand the audio. Please try again.")
		return
	}
	h.deps.Metrics.ObserveTranscription(backend, "ok")

	resp, err := h.deps.Chat.Chat(r.Context(), coach.ChatRequest{
		UserID:  userID,
		Message: text,
		Coach:   r.FormValue("coach"),
		Topic:   r.FormValue("topic"),
		Profile: profile,
		Kind:    domain.KindVoice,
	})
	if err != nil {
		h.chatError(w, userID, err)
		return
	}
	JSON(w, http.StatusOK, VoiceResponse{Transcript: text, Chat: resp})
}

func (h *Handler) readAudio(w http.ResponseWriter, r *http.Request) (transcribe.Audio, bool) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		Error(w, http.StatusBadRequest, "audio file is required")
		return transcribe.Audio{}, false
	}
	defer file.Close()

	limit := h.opts.VoiceMaxBytes
	if limit <= 0 {
		limit = header.Size
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "could not read audio file")
		return transcribe.Audio{}, false
	}

	switch err := transcribe.CheckSize(int64(len(data)), h.opts.VoiceMinBytes, h.opts.VoiceMaxBytes); {
	case errors.Is(err, transcribe.ErrAudioTooSmall):
		Error(w, http.StatusBadRequest, "Audio upload is empty or too short")
		return transcribe.Audio{}, false
	case errors.Is(err, transcribe.ErrAudioTooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "audio file is too large")
		return transcribe.Audio{}, false
	}

	return transcribe.Audio{
		Data:     data,
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
	}, true
}

func (h *Handler) chatError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, coach.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "Empty message")
	case errors.Is(err, coach.ErrMissingUserID):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.deps.Logger.Error("Chat request failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
