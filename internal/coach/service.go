// Package coach implements the conversation router and plan lifecycle.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/llm"
	"github.com/ashureev/betterme/internal/metrics"
	"github.com/ashureev/betterme/internal/store"
)

var (
	// ErrEmptyMessage is returned for a turn with no text.
	ErrEmptyMessage = errors.New("empty message")
	// ErrMissingUserID is returned when a request has no user id.
	ErrMissingUserID = errors.New("missing user_id")
)

// Options tunes conversation behavior.
type Options struct {
	HistoryLimit    int
	FollowupAfter   time.Duration
	RequireBaseline bool
}

// Service runs chat turns against persisted user state. Turns for the same
// user are serialized.
type Service struct {
	states  store.StateStore
	gen     llm.Generator
	builder *PlanBuilder
	refiner *Refiner
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	userLocks sync.Map
}

// NewService wires a Service.
func NewService(states store.StateStore, gen llm.Generator, catalog *Catalog, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "coach")
	return &Service{
		states:  states,
		gen:     gen,
		builder: NewPlanBuilder(gen, catalog, logger),
		refiner: NewRefiner(gen, catalog, logger),
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// turn carries per-request values through the mode handlers.
type turn struct {
	state  *domain.UserState
	userID string
	text   string
	topic  string
	coach  string
	intent Intent
	now    time.Time

	savedConfidence  bool
	awaitingBaseline bool
	explicitNewPlan  bool
	step             domain.Step
	replyKind        domain.EntryKind
}

// Chat handles one user message and persists the updated state.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ErrMissingUserID
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	unlock := s.lockUser(userID)
	defer unlock()

	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	deliverDueFollowup(state, now, s.opts.HistoryLimit)

	t := &turn{
		state:  state,
		userID: userID,
		text:   text,
		coach:  strings.TrimSpace(req.Coach),
		intent: Classify(text),
		now:    now,
	}
	t.topic = s.resolveTopic(state, req, text)

	kind := req.Kind
	if kind == "" {
		kind = domain.KindChat
	}
	state.AppendHistory(domain.HistoryEntry{
		Role: domain.RoleUser, Text: text, TS: now, Kind: kind, Topic: t.topic,
	}, s.opts.HistoryLimit)

	route := s.route(t)
	resp := s.dispatch(ctx, t, route)

	scheduleFollowup(state, now, s.opts.FollowupAfter)
	for _, m := range resp.Messages {
		state.AppendHistory(domain.HistoryEntry{
			Role: domain.RoleCoach, Text: m.Text, TS: s.now().UTC(), Kind: t.replyKind, Topic: t.topic,
		}, s.opts.HistoryLimit)
	}

	if err := s.states.Save(ctx, userID, state); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}

	s.metrics.ObserveTurn(string(resp.UI.Mode), string(t.step))
	s.logger.Info("Chat turn handled",
		"user_id", userID,
		"topic", t.topic,
		"rule", route.Rule,
		"mode", resp.UI.Mode,
		"step", t.step,
	)
	return resp, nil
}

// History returns the transcript, delivering a due follow-up first.
// An empty topic returns every entry.
func (s *Service) History(ctx context.Context, userID, topic string) (*HistoryResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUserID
	}

	unlock := s.lockUser(userID)
	defer unlock()

	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if deliverDueFollowup(state, s.now().UTC(), s.opts.HistoryLimit) {
		if err := s.states.Save(ctx, userID, state); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
		s.logger.Info("Follow-up delivered", "user_id", userID)
	}

	topic = NormalizeTopic(topic)
	out := &HistoryResponse{Topic: topic, Messages: []domain.HistoryEntry{}}
	for _, e := range state.History {
		if topic == "" || e.Topic == topic {
			out.Messages = append(out.Messages, e)
		}
	}
	return out, nil
}

// State returns the migrated state for a user without modifying it.
func (s *Service) State(ctx context.Context, userID string) (*domain.UserState, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	return s.load(ctx, userID)
}

func (s *Service) load(ctx context.Context, userID string) (*domain.UserState, error) {
	state, err := s.states.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	state.Migrate(s.opts.HistoryLimit)
	return state, nil
}

func (s *Service) lockUser(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// resolveTopic picks the topic for a turn. An explicit topic wins; replies to
// a pending baseline prompt or discovery question keep the flow's topic. A
// message with no topic keyword stays on the plan-build topic while that
// topic has an active plan or plan building is under way.
func (s *Service) resolveTopic(state *domain.UserState, req ChatRequest, text string) string {
	if t := NormalizeTopic(req.Topic); t != "" {
		return t
	}
	if gate := state.Gates.AwaitingBaselineFor; gate != "" {
		if _, ok := ParseConfidence(text); ok {
			return gate
		}
	}
	if state.PlanBuild.PendingQuestion != "" && discoveryInProgress(state) && state.PlanBuild.Topic != "" {
		return state.PlanBuild.Topic
	}
	if topic, ok := keywordTopic(text); ok {
		return topic
	}
	if pb := state.PlanBuild.Topic; pb != "" && (state.Mode == domain.ModePlanBuild || state.ActivePlanFor(pb) != nil) {
		return pb
	}
	return InferTopic(text, req.Profile)
}

// route captures a confidence rating and decides the mode and step. A rating
// that answers the baseline prompt resumes the plan step that was gated.
func (s *Service) route(t *turn) Route {
	if v, ok := ParseConfidence(t.text); ok {
		t.state.RecordConfidence(t.topic, v, t.now)
		t.savedConfidence = true

		if t.state.Gates.AwaitingBaselineFor == t.topic {
			step := t.state.Gates.ResumeStep
			if step == domain.StepNone {
				step = domain.StepDiscovery
			}
			t.explicitNewPlan = step == domain.StepDraft
			t.state.Gates = domain.Gates{}
			return Route{Mode: domain.ModePlanBuild, Step: step, Rule: "baseline_captured"}
		}
	}
	if t.intent.NewPlan {
		t.explicitNewPlan = true
	}
	return Decide(t.state, t.intent, t.topic)
}

func (s *Service) dispatch(ctx context.Context, t *turn, route Route) *ChatResponse {
	if route.Mode == domain.ModeChat {
		return s.handleChat(ctx, t, route.ShowPlan)
	}

	needsBaseline := s.opts.RequireBaseline && !t.state.HasBaseline(t.topic)
	switch route.Step {
	case domain.StepDiscovery:
		if needsBaseline {
			return s.handleBaselineGate(ctx, t, route.Step)
		}
		return s.handleDiscovery(ctx, t)
	case domain.StepDraft:
		if needsBaseline {
			return s.handleBaselineGate(ctx, t, route.Step)
		}
		return s.handleDraft(ctx, t)
	default:
		return s.handleRefine(ctx, t)
	}
}
