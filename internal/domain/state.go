// Package domain contains core domain types for the coaching backend.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CurrentStateVersion is the schema version written by Migrate.
const CurrentStateVersion = 2

// Mode is the conversation mode for a turn.
type Mode string

const (
	ModeChat      Mode = "CHAT"
	ModePlanBuild Mode = "PLAN_BUILD"
)

// Step is the plan-building sub-state. Empty outside plan building.
type Step string

const (
	StepNone      Step = ""
	StepDiscovery Step = "DISCOVERY"
	StepDraft     Step = "DRAFT"
	StepRefine    Step = "REFINE"
)

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
)

// EntryKind tags what a history entry was produced by.
type EntryKind string

const (
	KindChat     EntryKind = "chat"
	KindVoice    EntryKind = "voice"
	KindQuestion EntryKind = "question"
	KindBaseline EntryKind = "baseline"
	KindPlan     EntryKind = "plan"
	KindFollowup EntryKind = "followup"
)

// Discovery question identifiers, in asking order.
const (
	QuestionDeadline = "deadline"
	QuestionTarget   = "target"
)

// DiscoveryQuestionIDs lists discovery questions in the order they are asked.
var DiscoveryQuestionIDs = []string{QuestionDeadline, QuestionTarget}

// HistoryEntry is a single line of the conversation transcript.
type HistoryEntry struct {
	Role  Role      `json:"role"`
	Text  string    `json:"text"`
	TS    time.Time `json:"ts"`
	Kind  EntryKind `json:"kind,omitempty"`
	Topic string    `json:"topic,omitempty"`
}

// Confidence is a per-topic self rating. Baseline is written once.
type Confidence struct {
	Baseline  *int      `json:"baseline,omitempty"`
	Last      int       `json:"last"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metrics groups user-reported measurements.
type Metrics struct {
	Confidence map[string]*Confidence `json:"confidence"`
}

// PlanBuild tracks the plan-building flow.
type PlanBuild struct {
	Step            Step              `json:"step"`
	Topic           string            `json:"topic,omitempty"`
	QuestionsAsked  int               `json:"discovery_questions_asked"`
	PendingQuestion string            `json:"pending_question,omitempty"`
	Answers         map[string]string `json:"discovery_answers"`
	ActivePlanID    string            `json:"active_plan_id,omitempty"`
	ActiveByTopic   map[string]string `json:"active_by_topic"`
	Locked          bool              `json:"locked"`
}

// Gates holds prompts that block plan building until answered.
type Gates struct {
	AwaitingBaselineFor string `json:"awaiting_baseline_for,omitempty"`
	ResumeStep          Step   `json:"resume_step,omitempty"`
}

// Followup is the in-band reminder marker.
type Followup struct {
	PendingAt    *time.Time `json:"pending_at,omitempty"`
	PendingForTS *time.Time `json:"pending_for_ts,omitempty"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
}

// UserState is everything persisted for one user.
type UserState struct {
	Version   int              `json:"version"`
	Mode      Mode             `json:"mode"`
	History   []HistoryEntry   `json:"history"`
	Metrics   Metrics          `json:"metrics"`
	PlanBuild PlanBuild        `json:"plan_build"`
	Plans     map[string]*Plan `json:"plans"`
	Followup  Followup         `json:"followup"`
	Gates     Gates            `json:"gates"`
}

// NewUserState returns an empty, migrated state.
func NewUserState() *UserState {
	s := &UserState{}
	s.Migrate(0)
	return s
}

// DecodeUserState parses a stored bucket. Malformed history rows and plans are
// dropped rather than failing the whole bucket.
func DecodeUserState(raw []byte) (*UserState, error) {
	var loose struct {
		UserState
		History []json.RawMessage          `json:"history"`
		Plans   map[string]json.RawMessage `json:"plans"`
		// legacy revisions stored discovery answers by position
		PlanBuild struct {
			PlanBuild
			Answers map[string]any `json:"discovery_answers"`
		} `json:"plan_build"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("decode user state: %w", err)
	}

	s := loose.UserState
	s.PlanBuild = loose.PlanBuild.PlanBuild
	s.PlanBuild.Answers = make(map[string]string, len(loose.PlanBuild.Answers))
	for k, v := range loose.PlanBuild.Answers {
		if str, ok := v.(string); ok {
			s.PlanBuild.Answers[k] = str
		}
	}

	s.History = make([]HistoryEntry, 0, len(loose.History))
	for _, row := range loose.History {
		var e HistoryEntry
		if err := json.Unmarshal(row, &e); err != nil {
			continue
		}
		s.History = append(s.History, e)
	}

	s.Plans = make(map[string]*Plan, len(loose.Plans))
	for id, row := range loose.Plans {
		var p Plan
		if err := json.Unmarshal(row, &p); err != nil {
			continue
		}
		if p.ID == "" {
			p.ID = id
		}
		s.Plans[id] = &p
	}
	return &s, nil
}

// Migrate repairs the shape of a loaded state and upgrades it to
// CurrentStateVersion. historyLimit <= 0 leaves history length alone.
func (s *UserState) Migrate(historyLimit int) {
	if s.Mode != ModePlanBuild {
		s.Mode = ModeChat
	}
	if s.Metrics.Confidence == nil {
		s.Metrics.Confidence = make(map[string]*Confidence)
	}
	for topic, c := range s.Metrics.Confidence {
		if c == nil {
			delete(s.Metrics.Confidence, topic)
		}
	}
	if s.Plans == nil {
		s.Plans = make(map[string]*Plan)
	}
	for _, p := range s.Plans {
		p.normalize()
	}

	pb := &s.PlanBuild
	if pb.Answers == nil {
		pb.Answers = make(map[string]string)
	}
	for i, id := range DiscoveryQuestionIDs {
		pos := fmt.Sprint(i)
		if v, ok := pb.Answers[pos]; ok {
			if _, keyed := pb.Answers[id]; !keyed {
				pb.Answers[id] = v
			}
			delete(pb.Answers, pos)
		}
	}
	if pb.ActiveByTopic == nil {
		pb.ActiveByTopic = make(map[string]string)
	}
	if pb.ActivePlanID != "" {
		if p, ok := s.Plans[pb.ActivePlanID]; ok {
			if _, set := pb.ActiveByTopic[p.Topic]; !set {
				pb.ActiveByTopic[p.Topic] = p.ID
			}
		} else {
			pb.ActivePlanID = ""
			pb.Locked = false
		}
	}
	for topic, id := range pb.ActiveByTopic {
		if _, ok := s.Plans[id]; !ok {
			delete(pb.ActiveByTopic, topic)
		}
	}

	kept := s.History[:0]
	for _, e := range s.History {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		if e.Role != RoleUser && e.Role != RoleCoach {
			continue
		}
		if e.Kind == "" {
			e.Kind = KindChat
		}
		kept = append(kept, e)
	}
	s.History = kept
	if s.History == nil {
		s.History = []HistoryEntry{}
	}
	s.trimHistory(historyLimit)

	s.Version = CurrentStateVersion
}

// AppendHistory adds an entry and drops the oldest entries beyond limit.
func (s *UserState) AppendHistory(e HistoryEntry, limit int) {
	s.History = append(s.History, e)
	s.trimHistory(limit)
}

func (s *UserState) trimHistory(limit int) {
	if limit > 0 && len(s.History) > limit {
		s.History = append([]HistoryEntry(nil), s.History[len(s.History)-limit:]...)
	}
}

// LastUserEntry returns the most recent user-authored entry.
func (s *UserState) LastUserEntry() (HistoryEntry, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleUser {
			return s.History[i], true
		}
	}
	return HistoryEntry{}, false
}

// ActivePlanFor returns the active plan for topic, or nil.
func (s *UserState) ActivePlanFor(topic string) *Plan {
	id, ok := s.PlanBuild.ActiveByTopic[topic]
	if !ok {
		return nil
	}
	return s.Plans[id]
}

// ActivatePlan stores p and marks it the active plan for its topic.
// Older plans for the same topic stay in Plans.
func (s *UserState) ActivatePlan(p *Plan) {
	s.Plans[p.ID] = p
	s.PlanBuild.ActiveByTopic[p.Topic] = p.ID
	s.PlanBuild.ActivePlanID = p.ID
	s.PlanBuild.Topic = p.Topic
}

// HasBaseline reports whether a baseline confidence exists for topic.
func (s *UserState) HasBaseline(topic string) bool {
	c, ok := s.Metrics.Confidence[topic]
	return ok && c.Baseline != nil
}

// RecordConfidence stores a rating. The first rating becomes the baseline.
func (s *UserState) RecordConfidence(topic string, value int, now time.Time) *Confidence {
	c, ok := s.Metrics.Confidence[topic]
	if !ok {
		c = &Confidence{}
		s.Metrics.Confidence[topic] = c
	}
	if c.Baseline == nil {
		v := value
		c.Baseline = &v
	}
	c.Last = value
	c.UpdatedAt = now
	return c
}

// ResetDiscovery clears discovery progress for a fresh plan.
func (pb *PlanBuild) ResetDiscovery() {
	pb.QuestionsAsked = 0
	pb.PendingQuestion = ""
	pb.Answers = make(map[string]string)
}
