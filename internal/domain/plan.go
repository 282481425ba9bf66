package domain

import "time"

// TaskStatus is the completion state of a plan task.
type TaskStatus string

const (
	TaskTodo TaskStatus = "todo"
	TaskDone TaskStatus = "done"
)

// Resource is a learning link attached to a task.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Task is one actionable item in a plan.
type Task struct {
	Text      string     `json:"text"`
	Status    TaskStatus `json:"status"`
	Resources []Resource `json:"resources,omitempty"`
}

// Milestone is a coarse phase of a plan.
type Milestone struct {
	Name   string     `json:"name"`
	Status TaskStatus `json:"status"`
}

// Plan is a named, ordered task list for one topic.
type Plan struct {
	ID         string      `json:"id"`
	Topic      string      `json:"topic"`
	Title      string      `json:"title"`
	Goal       string      `json:"goal"`
	Milestones []Milestone `json:"milestones"`
	Tasks      []Task      `json:"tasks"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TaskTexts returns the task texts in order.
func (p *Plan) TaskTexts() []string {
	out := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		out = append(out, t.Text)
	}
	return out
}

func (p *Plan) normalize() {
	if p.Tasks == nil {
		p.Tasks = []Task{}
	}
	for i := range p.Tasks {
		if p.Tasks[i].Status != TaskDone {
			p.Tasks[i].Status = TaskTodo
		}
	}
	if p.Milestones == nil {
		p.Milestones = []Milestone{}
	}
	for i := range p.Milestones {
		if p.Milestones[i].Status != TaskDone {
			p.Milestones[i].Status = TaskTodo
		}
	}
}
