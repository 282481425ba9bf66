package coach

import (
	"fmt"
	"strings"

	"github.com/ashureev/betterme/internal/domain"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 700
)

const chatSystemPrompt = "You are a friendly, helpful coach. Keep responses short and natural. " +
	"Do NOT create a plan unless user asks for one. " +
	"If user seems stressed, offer help in one sentence. " +
	`Reply as JSON: {"message": "<your reply>", "tips": ["<optional short tip>", ...]}. ` +
	"Use at most 3 tips and an empty list when none fit."

const planSystemPrompt = "You are a practical, concise coach. Suggest a simple prep plan. " +
	"Return ONLY a bullet list of actionable tasks (no headings, no paragraphs). " +
	"Tasks should be specific and doable in 30–90 minutes."

const refineSystemPrompt = "You are editing an existing plan. Do NOT create a new plan. " +
	"Given the user's request, propose up to 5 concrete edits to tasks. " +
	"Return ONLY a bullet list of edits using one of these verbs at the start: " +
	"'ADD:', 'REMOVE:', 'CHANGE:', 'REORDER:'. " +
	"Write CHANGE edits as 'CHANGE: <old task text> -> <new task text>'."

const (
	baselinePromptText = "Before I build a plan: on a scale of 1–10, how confident do you feel about this right now? " +
		"Just reply with a number."
	followupText = "Checking in: did you get a chance to work on your plan since we last talked? " +
		"Tell me how it went, or pick one small task for today."
	apologyText = "Sorry, I couldn't come up with a reply just now. Could you try again in a moment?"
	quotaText   = "Sorry, I've hit my usage limit for the moment. Please try again in a little while."
)

func chatSystem(coachName string) string {
	if coachName == "" {
		return chatSystemPrompt
	}
	return fmt.Sprintf("Your name is %s. %s", coachName, chatSystemPrompt)
}

func chatUserPrompt(userText, topic string, savedConfidence, awaitingBaseline bool, plan *domain.Plan) string {
	var b strings.Builder
	switch {
	case savedConfidence:
		fmt.Fprintf(&b, "The user just provided a confidence number for topic '%s'. User message: %s\n", topic, userText)
		b.WriteString("Reply briefly. Do not ask more calibration questions.")
	case awaitingBaseline:
		fmt.Fprintf(&b, "User message: %s\n", userText)
		b.WriteString("A confidence rating was already requested; do not ask for it again.")
	default:
		b.WriteString(userText)
	}
	if plan != nil {
		fmt.Fprintf(&b, "\n\nThe user's current plan is '%s' with tasks:\n", plan.Title)
		for i, t := range plan.Tasks {
			if i == maxPromptTasks {
				break
			}
			fmt.Fprintf(&b, "- %s\n", t.Text)
		}
		b.WriteString("Refer to it if relevant. Do not rewrite it.")
	}
	return b.String()
}

func planUserPrompt(topic string, answers map[string]string, userText string) string {
	deadline := answers[domain.QuestionDeadline]
	if deadline == "" {
		deadline = "soon"
	}
	target := answers[domain.QuestionTarget]
	if target == "" {
		target = "mixed"
	}
	return fmt.Sprintf("Topic: %s\nDeadline: %s\nTarget: %s\nUser context: %s\nGive 8–10 tasks.",
		topic, deadline, target, userText)
}

func refineUserPrompt(plan *domain.Plan, userText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan title: %s\nExisting tasks:\n", plan.Title)
	for i, t := range plan.Tasks {
		if i == maxPromptTasks {
			break
		}
		fmt.Fprintf(&b, "- %s\n", t.Text)
	}
	b.WriteString("\nUser request:\n")
	b.WriteString(userText)
	return b.String()
}

const maxPromptTasks = 12
