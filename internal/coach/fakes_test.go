package coach

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/llm"
)

// scriptedGen answers by prompt type and records every request.
type scriptedGen struct {
	mu       sync.Mutex
	chat     string
	plan     string
	refine   string
	err      error
	requests []llm.Request
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	switch req.System {
	case planSystemPrompt:
		return g.plan, nil
	case refineSystemPrompt:
		return g.refine, nil
	default:
		return g.chat, nil
	}
}

func (g *scriptedGen) lastRequest() llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return llm.Request{}
	}
	return g.requests[len(g.requests)-1]
}

// memStates round-trips buckets through JSON like the real stores.
type memStates struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStates() *memStates {
	return &memStates{data: make(map[string][]byte)}
}

func (m *memStates) Load(_ context.Context, userID string) (*domain.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[userID]
	if !ok {
		return domain.NewUserState(), nil
	}
	return domain.DecodeUserState(raw)
}

func (m *memStates) Save(_ context.Context, userID string, state *domain.UserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = raw
	return nil
}

func (m *memStates) Close() error { return nil }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(gen llm.Generator, opts Options) (*Service, *memStates, *fakeClock) {
	states := newMemStates()
	clock := &fakeClock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = 80
	}
	s := NewService(states, gen, DefaultCatalog(), opts, nil, nil)
	s.now = clock.Now
	s.builder.now = clock.Now
	s.refiner.now = clock.Now
	return s, states, clock
}
