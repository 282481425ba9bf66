package coach

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/llm"
)

const (
	maxPlanTasks   = 10
	maxBulletRunes = 160
	maxMermaidTask = 6
)

var fallbackTasks = []string{
	"Write a 6–8 line story: your background + what role you want + why.",
	"Review core concepts and make a 1-page cheat sheet.",
	"Do one mock interview question and write a better second answer.",
	"Pick 2 projects and practice explaining them in 2 minutes each.",
	"Practice 5 common behavioral questions with STAR format.",
	"Review one system design pattern relevant to the role.",
	"Do 30 minutes of coding practice (easy/medium).",
	"Create a checklist for interview day and logistics.",
}

var planTitles = map[string]string{
	TopicInterview:    "Interview Confidence Plan",
	TopicWork:         "Work Focus Plan",
	TopicRelationship: "Relationship Communication Plan",
	TopicAppearance:   "Appearance Confidence Plan",
	TopicGeneral:      "Personal Improvement Plan",
}

var defaultMilestones = []string{"Get clarity", "Build reps", "Polish & confidence"}

var (
	bulletMarker   = regexp.MustCompile(`^\s*[-*•]\s+`)
	numberedMarker = regexp.MustCompile(`^\s*\d+\.\s+`)
)

// ExtractBullets returns up to limit non-blank lines with list markers removed.
// Lines over 160 characters are cut to 157 and end with an ellipsis.
func ExtractBullets(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(bulletMarker.ReplaceAllString(line, ""))
		line = strings.TrimSpace(numberedMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxBulletRunes {
			line = strings.TrimRight(string([]rune(line)[:maxBulletRunes-3]), " \t") + "…"
		}
		out = append(out, line)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// PlanTitle returns the display title for a topic.
func PlanTitle(topic string) string {
	if title, ok := planTitles[topic]; ok {
		return title
	}
	return "Personal Plan"
}

// NewPlanID returns a short random plan id like "plan_1a2b3c4d".
func NewPlanID() string {
	return "plan_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// PlanBuilder drafts plans from model suggestions.
type PlanBuilder struct {
	gen     llm.Generator
	catalog *Catalog
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewPlanBuilder creates a PlanBuilder.
func NewPlanBuilder(gen llm.Generator, catalog *Catalog, logger *slog.Logger) *PlanBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanBuilder{gen: gen, catalog: catalog, logger: logger, now: time.Now, newID: NewPlanID}
}

// Build always returns a plan with tasks; the fixed task list is used when the
// model fails or returns nothing usable.
func (b *PlanBuilder) Build(ctx context.Context, topic string, answers map[string]string, userText string) *domain.Plan {
	var texts []string
	ideas, err := b.gen.Generate(ctx, llm.Request{
		System:          planSystemPrompt,
		Prompt:          planUserPrompt(topic, answers, userText),
		Temperature:     chatTemperature,
		MaxOutputTokens: chatMaxTokens,
	})
	if err != nil {
		b.logger.Warn("Plan generation failed, using fallback tasks", "topic", topic, "error", err)
	} else {
		texts = ExtractBullets(ideas, maxPlanTasks)
	}
	if len(texts) == 0 {
		texts = fallbackTasks
	}

	now := b.now().UTC()
	title := PlanTitle(topic)
	plan := &domain.Plan{
		ID:        b.newID(),
		Topic:     topic,
		Title:     title,
		Goal:      "Make steady progress on " + strings.ToLower(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range defaultMilestones {
		plan.Milestones = append(plan.Milestones, domain.Milestone{Name: name, Status: domain.TaskTodo})
	}
	for _, text := range texts {
		plan.Tasks = append(plan.Tasks, b.newTask(text))
	}
	return plan
}

func (b *PlanBuilder) newTask(text string) domain.Task {
	return domain.Task{Text: text, Status: domain.TaskTodo, Resources: b.catalog.Pick(text)}
}

// PlanToMermaid renders a small flowchart: the title plus up to six tasks.
func PlanToMermaid(p *domain.Plan) string {
	title := p.Title
	if title == "" {
		title = "Plan"
	}
	lines := []string{"flowchart TD", fmt.Sprintf(`A["%s"]`, mermaidSafe(title))}
	for i, t := range p.Tasks {
		if i == maxMermaidTask {
			break
		}
		node := fmt.Sprintf("T%d", i+1)
		lines = append(lines, fmt.Sprintf(`%s["%s"]`, node, mermaidSafe(t.Text)), "A --> "+node)
	}
	return strings.Join(lines, "\n")
}

func mermaidSafe(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

// PlanLink is the frontend route for a plan.
func PlanLink(id string) string {
	return "/plans/" + id
}
