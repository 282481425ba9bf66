package coach

import (
	"encoding/json"
	"strings"

	"github.com/ashureev/betterme/internal/domain"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	UserID  string         `json:"user_id"`
	Message string         `json:"message"`
	Coach   string         `json:"coach,omitempty"`
	Profile map[string]any `json:"profile,omitempty"`
	Topic   string         `json:"topic,omitempty"`

	// Kind tags the stored user entry; empty means KindChat.
	Kind domain.EntryKind `json:"-"`
}

// Message is a coach reply line.
type Message struct {
	Role domain.Role `json:"role"`
	Text string      `json:"text"`
}

// UI carries rendering hints for the frontend.
type UI struct {
	Mode            domain.Mode `json:"mode"`
	ShowPlanSidebar bool        `json:"show_plan_sidebar"`
	PlanLink        string      `json:"plan_link,omitempty"`
	Mermaid         string      `json:"mermaid,omitempty"`
}

// Effects reports state changes made by the turn.
type Effects struct {
	SavedConfidence bool   `json:"saved_confidence"`
	CreatedPlanID   string `json:"created_plan_id,omitempty"`
	UpdatedPlanID   string `json:"updated_plan_id,omitempty"`
}

// ChatResponse is the reply to a turn.
type ChatResponse struct {
	Messages []Message    `json:"messages"`
	UI       UI           `json:"ui"`
	Effects  Effects      `json:"effects"`
	Plan     *domain.Plan `json:"plan,omitempty"`
}

// HistoryResponse is the transcript view for one topic.
type HistoryResponse struct {
	Topic    string                `json:"topic"`
	Messages []domain.HistoryEntry `json:"messages"`
}

func coachReply(text string, mode domain.Mode) *ChatResponse {
	return &ChatResponse{
		Messages: []Message{{Role: domain.RoleCoach, Text: text}},
		UI:       UI{Mode: mode},
	}
}

func (r *ChatResponse) withPlan(p *domain.Plan) *ChatResponse {
	r.Plan = p
	r.UI.ShowPlanSidebar = true
	r.UI.PlanLink = PlanLink(p.ID)
	r.UI.Mermaid = PlanToMermaid(p)
	return r
}

type modelChatReply struct {
	Message string   `json:"message"`
	Tips    []string `json:"tips"`
}

// parseChatReply reads the {message, tips} object the chat prompt asks for.
// Anything else is returned as plain text.
func parseChatReply(raw string) string {
	text := strings.TrimSpace(raw)
	body := stripCodeFence(text)

	var reply modelChatReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil || strings.TrimSpace(reply.Message) == "" {
		return text
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(reply.Message))
	first := true
	for _, tip := range reply.Tips {
		tip = strings.TrimSpace(tip)
		if tip == "" {
			continue
		}
		if first {
			b.WriteString("\n")
			first = false
		}
		b.WriteString("\n• ")
		b.WriteString(tip)
	}
	return b.String()
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
