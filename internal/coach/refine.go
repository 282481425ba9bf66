package coach

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/llm"
)

const (
	maxEdits         = 5
	maxTasksAfterAdd = 30
)

// EditOp is a plan edit verb.
type EditOp string

const (
	EditAdd     EditOp = "ADD"
	EditRemove  EditOp = "REMOVE"
	EditChange  EditOp = "CHANGE"
	EditReorder EditOp = "REORDER"
)

// Edit is one parsed edit instruction.
type Edit struct {
	Op  EditOp
	Arg string
}

var (
	editOps     = []EditOp{EditAdd, EditRemove, EditChange, EditReorder}
	changeArrow = regexp.MustCompile(`\s*->\s*`)
)

// ParseEdits keeps lines that start with a known verb followed by a colon.
func ParseEdits(lines []string) []Edit {
	var out []Edit
	for _, line := range lines {
		line = strings.TrimSpace(line)
		for _, op := range editOps {
			prefix := string(op) + ":"
			if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
				out = append(out, Edit{Op: op, Arg: strings.TrimSpace(line[len(prefix):])})
				break
			}
		}
	}
	return out
}

// ApplyEdits applies edits to tasks in order and returns the new list and the
// number of edits that changed something. Matching is a case-insensitive
// substring search against task text; only the first match is touched.
func ApplyEdits(tasks []domain.Task, edits []Edit, catalog *Catalog) ([]domain.Task, int) {
	out := append([]domain.Task(nil), tasks...)
	applied := 0
	for _, e := range edits {
		switch e.Op {
		case EditAdd:
			if e.Arg == "" || len(out) >= maxTasksAfterAdd {
				continue
			}
			out = append(out, domain.Task{Text: e.Arg, Status: domain.TaskTodo, Resources: catalog.Pick(e.Arg)})
			applied++

		case EditRemove:
			if i := findTask(out, e.Arg); i >= 0 {
				out = append(out[:i], out[i+1:]...)
				applied++
			}

		case EditChange:
			parts := changeArrow.Split(e.Arg, 2)
			if len(parts) != 2 {
				continue
			}
			oldText, newText := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if oldText == "" || newText == "" {
				continue
			}
			if i := findTask(out, oldText); i >= 0 {
				out[i].Text = newText
				out[i].Resources = catalog.Pick(newText)
				applied++
			}

		case EditReorder:
			if i := findTask(out, e.Arg); i > 0 {
				t := out[i]
				copy(out[1:i+1], out[:i])
				out[0] = t
				applied++
			}
		}
	}
	return out, applied
}

func findTask(tasks []domain.Task, needle string) int {
	key := strings.ToLower(strings.TrimSpace(needle))
	if key == "" {
		return -1
	}
	for i, t := range tasks {
		if strings.Contains(strings.ToLower(t.Text), key) {
			return i
		}
	}
	return -1
}

// Refiner edits an existing plan in place from a free-text request.
type Refiner struct {
	gen     llm.Generator
	catalog *Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewRefiner creates a Refiner.
func NewRefiner(gen llm.Generator, catalog *Catalog, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{gen: gen, catalog: catalog, logger: logger, now: time.Now}
}

// Refine asks the model for edits and applies them to plan. On model failure
// the plan is left untouched and the error is returned.
func (r *Refiner) Refine(ctx context.Context, plan *domain.Plan, userText string) (int, error) {
	raw, err := r.gen.Generate(ctx, llm.Request{
		System:          refineSystemPrompt,
		Prompt:          refineUserPrompt(plan, userText),
		Temperature:     chatTemperature,
		MaxOutputTokens: chatMaxTokens,
	})
	if err != nil {
		return 0, err
	}

	edits := ParseEdits(ExtractBullets(raw, maxEdits))
	tasks, applied := ApplyEdits(plan.Tasks, edits, r.catalog)
	if applied > 0 {
		plan.Tasks = tasks
		plan.UpdatedAt = r.now().UTC()
	}

	r.logger.Debug("Plan refined", "plan_id", plan.ID, "edits", len(edits), "applied", applied)
	return applied, nil
}
