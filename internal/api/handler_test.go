//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/betterme/internal/coach"
	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/notify"
	"github.com/ashureev/betterme/internal/store"
	"github.com/ashureev/betterme/internal/transcribe"
)

type fakeChat struct {
	mu       sync.Mutex
	requests []coach.ChatRequest
	history  []string
}

func (f *fakeChat) Chat(_ context.Context, req coach.ChatRequest) (*coach.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(req.UserID) == "" {
		return nil, coach.ErrMissingUserID
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, coach.ErrEmptyMessage
	}
	f.requests = append(f.requests, req)
	return &coach.ChatResponse{
		Messages: []coach.Message{{Role: domain.RoleCoach, Text: "echo: " + req.Message}},
		UI:       coach.UI{Mode: domain.ModeChat},
	}, nil
}

func (f *fakeChat) History(_ context.Context, userID, topic string) (*coach.HistoryResponse, error) {
	if userID == "" {
		return nil, coach.ErrMissingUserID
	}
	f.history = append(f.history, userID+"/"+topic)
	return &coach.HistoryResponse{Topic: topic, Messages: []domain.HistoryEntry{}}, nil
}

type fakeCheckins struct {
	token      string
	activities []domain.Activity
}

func (f *fakeCheckins) RecordActivity(_ context.Context, a domain.Activity) error {
	if a.UserID == "" {
		return notify.ErrMissingUserID
	}
	if a.Email == "bad" {
		return domain.ErrInvalidEmail
	}
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeCheckins) Authorize(token string) error {
	if f.token == "" {
		return notify.ErrSchedulerNotConfigured
	}
	if token != f.token {
		return notify.ErrUnauthorized
	}
	return nil
}

func (f *fakeCheckins) RunCheckins(context.Context) (*notify.RunResult, error) {
	return &notify.RunResult{Emailed: 2, Considered: 5}, nil
}

type fakeRepo struct {
	pingErr error
	users   map[string]*domain.User
}

func (r *fakeRepo) UpsertUserByEmail(_ context.Context, name, email string) (*domain.User, error) {
	if r.users == nil {
		r.users = map[string]*domain.User{}
	}
	u, ok := r.users[email]
	if !ok {
		u = &domain.User{UserID: "user-1", Email: email}
		r.users[email] = u
	}
	u.Name = name
	return u, nil
}

func (r *fakeRepo) GetUser(context.Context, string) (*domain.User, error) {
	return nil, store.ErrNotFound
}
func (r *fakeRepo) RecordActivity(context.Context, *domain.Activity) error   { return nil }
func (r *fakeRepo) ListActivity(context.Context) ([]*domain.Activity, error) { return nil, nil }
func (r *fakeRepo) MarkCheckinSent(context.Context, string, time.Time) error { return nil }
func (r *fakeRepo) Ping(context.Context) error                               { return r.pingErr }
func (r *fakeRepo) Close() error                                             { return nil }

type fakeStates struct {
	pingErr error
}

func (f *fakeStates) Load(context.Context, string) (*domain.UserState, error) {
	return domain.NewUserState(), nil
}
func (f *fakeStates) Save(context.Context, string, *domain.UserState) error { return nil }
func (f *fakeStates) Ping(context.Context) error                             { return f.pingErr }
func (f *fakeStates) Close() error                                           { return nil }

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Name() string { return "whisper" }

func (f *fakeTranscriber) Transcribe(context.Context, transcribe.Audio) (string, error) {
	f.calls++
	return f.text, f.err
}

type testServer struct {
	router   chi.Router
	chat     *fakeChat
	checkins *fakeCheckins
	repo     *fakeRepo
	tr       *fakeTranscriber
}

func newTestServer(opts Options) *testServer {
	ts := &testServer{
		chat:     &fakeChat{},
		checkins: &fakeCheckins{token: "secret"},
		repo:     &fakeRepo{},
		tr:       &fakeTranscriber{text: "I feel nervous"},
	}
	if opts.VoiceMinBytes == 0 {
		opts.VoiceMinBytes = 16
	}
	if opts.VoiceMaxBytes == 0 {
		opts.VoiceMaxBytes = 1 << 20
	}
	h := NewHandler(Deps{Repo: ts.repo, Chat: ts.chat, Checkins: ts.checkins, Transcriber: ts.tr}, opts)
	ts.router = chi.NewRouter()
	h.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, "short and stout")

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	var got map[string]string
	decode(t, w, &got)
	if got["error"] != "short and stout" {
		t.Errorf("Expected error message, got %v", got)
	}
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	var root map[string]string
	decode(t, w, &root)
	if root["status"] != "ok" || root["service"] != "better-me-backend" {
		t.Errorf("unexpected root body %v", root)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	ts.repo.pingErr = errors.New("disk gone")
	w = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
	var health map[string]interface{}
	decode(t, w, &health)
	if health["status"] != "degraded" {
		t.Errorf("Expected degraded, got %v", health["status"])
	}
}

func TestHealthChecksStateStore(t *testing.T) {
	states := &fakeStates{}
	h := NewHandler(Deps{Repo: &fakeRepo{}, States: states}, Options{})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	states.pingErr = errors.New("connection refused")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, w, &health)
	if health.Status != "degraded" || health.Checks["state_store"] != "unreachable" {
		t.Errorf("unexpected health body %+v", health)
	}
	if health.Checks["database"] != "ok" {
		t.Errorf("Expected database ok, got %q", health.Checks["database"])
	}
}

func TestChatEndpoint(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.postJSON("/chat", `{"user_id":"u1","message":"hello","topic":"work","profile":{"focus":"work"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp coach.ChatResponse
	decode(t, w, &resp)
	if len(resp.Messages) != 1 || resp.Messages[0].Text != "echo: hello" {
		t.Errorf("unexpected messages %+v", resp.Messages)
	}
	if got := ts.chat.requests[0]; got.Topic != "work" || got.Profile["focus"] != "work" {
		t.Errorf("request not forwarded: %+v", got)
	}

	cases := map[string]string{
		"empty message": `{"user_id":"u1","message":"  "}`,
		"no user":       `{"message":"hi"}`,
		"bad json":      `{"user_id":`,
	}
	for name, body := range cases {
		if w := ts.postJSON("/chat", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestChatRateLimited(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	ts := newTestServer(Options{Limiter: rl})

	if w := ts.postJSON("/chat", `{"user_id":"u1","message":"one"}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w := ts.postJSON("/chat", `{"user_id":"u1","message":"two"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w := ts.postJSON("/chat", `{"user_id":"u2","message":"one"}`); w.Code != http.StatusOK {
		t.Errorf("other users should not be throttled, got %d", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/chat/history?user_id=u1&topic=work_focus&coach=Sam", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if len(ts.chat.history) != 1 || ts.chat.history[0] != "u1/work_focus" {
		t.Errorf("unexpected history calls %v", ts.chat.history)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/chat/history", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func voiceRequest(t *testing.T, fields map[string]string, audio []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if audio != nil {
		fw, err := mw.CreateFormFile("audio", "note.webm")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(fw, bytes.NewReader(audio)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat/voice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestVoiceEndpoint(t *testing.T) {
	ts := newTestServer(Options{})
	audio := bytes.Repeat([]byte{1}, 64)

	w := ts.do(voiceRequest(t, map[string]string{"user_id": "u1", "topic": "interview", "profile_json": `{"focus":"interview"}`}, audio))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp VoiceResponse
	decode(t, w, &resp)
	if resp.Transcript != "I feel nervous" {
		t.Errorf("unexpected transcript %q", resp.Transcript)
	}
	if resp.Chat == nil || resp.Chat.Messages[0].Text != "echo: I feel nervous" {
		t.Errorf("unexpected chat %+v", resp.Chat)
	}
	got := ts.chat.requests[0]
	if got.Kind != domain.KindVoice || got.Topic != "interview" || got.Profile["focus"] != "interview" {
		t.Errorf("voice turn not forwarded: %+v", got)
	}
}

func TestVoiceRejectsBadUploads(t *testing.T) {
	ts := newTestServer(Options{})
	audio := bytes.Repeat([]byte{1}, 64)

	cases := []struct {
		name   string
		fields map[string]string
		audio  []byte
	}{
		{"too small", map[string]string{"user_id": "u1"}, []byte("tiny")},
		{"missing file", map[string]string{"user_id": "u1"}, nil},
		{"missing user", map[string]string{}, audio},
		{"bad profile", map[string]string{"user_id": "u1", "profile_json": "nope"}, audio},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(voiceRequest(t, tc.fields, tc.audio))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
	if ts.tr.calls != 0 {
		t.Errorf("transcriber should not run for rejected uploads, ran %d times", ts.tr.calls)
	}
}

func TestVoiceTranscriptionFailures(t *testing.T) {
	ts := newTestServer(Options{})
	audio := bytes.Repeat([]byte{1}, 64)

	ts.tr.err = errors.New("exit status 1")
	w := ts.do(voiceRequest(t, map[string]string{"user_id": "u1"}, audio))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if !strings.Contains(body["error"], "ffmpeg") {
		t.Errorf("expected install hint, got %q", body["error"])
	}

	ts.tr.err = nil
	ts.tr.text = "   "
	if w := ts.do(voiceRequest(t, map[string]string{"user_id": "u1"}, audio)); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty transcript, got %d", w.Code)
	}
	if len(ts.chat.requests) != 0 {
		t.Errorf("no chat turn expected, got %d", len(ts.chat.requests))
	}
}

func TestVoiceDisabled(t *testing.T) {
	h := NewHandler(Deps{Repo: &fakeRepo{}, Chat: &fakeChat{}, Checkins: &fakeCheckins{}}, Options{})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, voiceRequest(t, map[string]string{"user_id": "u1"}, []byte("audio")))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestNotifyActivity(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.postJSON("/notify/activity", `{"user_id":"u1","email":"a@b.co","focus":"work","need_label":"Deep work"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]bool
	decode(t, w, &body)
	if !body["ok"] {
		t.Errorf("Expected ok=true, got %v", body)
	}
	if a := ts.checkins.activities[0]; a.NeedLabel != "Deep work" || a.Focus != "work" {
		t.Errorf("activity not forwarded: %+v", a)
	}

	if w := ts.postJSON("/notify/activity", `{"email":"a@b.co"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without user_id, got %d", w.Code)
	}
	if w := ts.postJSON("/notify/activity", `{"user_id":"u1","email":"bad"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad email, got %d", w.Code)
	}
}

func TestRunCheckinsEndpoint(t *testing.T) {
	ts := newTestServer(Options{})

	run := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/notify/run-checkins", nil)
		if token != "" {
			req.Header.Set(SchedulerTokenHeader, token)
		}
		return ts.do(req)
	}

	if w := run("wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
	if w := run(""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	w := run("secret")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var res notify.RunResult
	decode(t, w, &res)
	if res.Emailed != 2 || res.Considered != 5 {
		t.Errorf("unexpected result %+v", res)
	}

	ts.checkins.token = ""
	if w := run("secret"); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 when token unset, got %d", w.Code)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(Options{})

	w := ts.postJSON("/users/login", `{"name":"  Ada ","email":" Ada@Example.com "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got loginResponse
	decode(t, w, &got)
	if got.UserID != "user-1" || got.Name != "Ada" || got.Email != "ada@example.com" {
		t.Errorf("unexpected login response %+v", got)
	}

	w = ts.postJSON("/users/login", `{"name":"Ada L","email":"ada@example.com"}`)
	decode(t, w, &got)
	if got.UserID != "user-1" || got.Name != "Ada L" {
		t.Errorf("expected rename of the same user, got %+v", got)
	}

	for _, body := range []string{`{"name":"","email":"ada@example.com"}`, `{"name":"Ada","email":"not-an-email"}`} {
		if w := ts.postJSON("/users/login", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}
