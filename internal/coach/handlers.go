package coach

import (
	"context"
	"fmt"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/llm"
)

const (
	draftReplyFormat = "Awesome — I made a starter plan for **%s**.\nWant it more intense or more lightweight?"
	refineReplyText  = "Done — I updated your current plan (same plan, not a new one).\nWhat do you want to tackle *today*?"
	refineNoopText   = "I looked at your plan but couldn't find a concrete change to make. " +
		"Which task should I add, remove, or change?"
	showPlanFormat = "Here's your current plan: **%s**. Want to adjust anything, or pick a task for today?"
)

// ShouldCreateNewPlan reports whether drafting may create a plan for topic
// instead of refining the active one.
func ShouldCreateNewPlan(state *domain.UserState, topic string, explicitNew bool) bool {
	if explicitNew {
		return true
	}
	active := state.ActivePlanFor(topic)
	return active == nil || active.Topic != topic
}

func (s *Service) handleChat(ctx context.Context, t *turn, showPlan bool) *ChatResponse {
	t.state.Mode = domain.ModeChat
	t.step = domain.StepNone
	t.replyKind = domain.KindChat

	active := t.state.ActivePlanFor(t.topic)
	var shown *domain.Plan
	if showPlan {
		shown = active
	}

	raw, err := s.gen.Generate(ctx, llm.Request{
		System:          chatSystem(t.coach),
		Prompt:          chatUserPrompt(t.text, t.topic, t.savedConfidence, t.awaitingBaseline, shown),
		Temperature:     chatTemperature,
		MaxOutputTokens: chatMaxTokens,
	})

	var text string
	switch {
	case err == nil:
		text = parseChatReply(raw)
	case shown != nil:
		text = fmt.Sprintf(showPlanFormat, shown.Title)
	default:
		text = s.apology(t, err)
	}

	resp := coachReply(text, domain.ModeChat)
	resp.Effects.SavedConfidence = t.savedConfidence
	resp.UI.ShowPlanSidebar = active != nil
	if shown != nil {
		resp.withPlan(shown)
	}
	return resp
}

// handleBaselineGate asks for a 1–10 rating once per episode. Later gated
// turns in the same episode get a normal chat reply.
func (s *Service) handleBaselineGate(ctx context.Context, t *turn, resume domain.Step) *ChatResponse {
	if t.state.Gates.AwaitingBaselineFor == t.topic {
		t.awaitingBaseline = true
		return s.handleChat(ctx, t, false)
	}

	t.state.Gates = domain.Gates{AwaitingBaselineFor: t.topic, ResumeStep: resume}
	t.state.Mode = domain.ModeChat
	t.step = domain.StepNone
	t.replyKind = domain.KindBaseline

	resp := coachReply(baselinePromptText, domain.ModeChat)
	resp.Effects.SavedConfidence = t.savedConfidence
	resp.UI.ShowPlanSidebar = t.state.ActivePlanFor(t.topic) != nil
	return resp
}

func (s *Service) handleDiscovery(ctx context.Context, t *turn) *ChatResponse {
	pb := &t.state.PlanBuild
	if !discoveryInProgress(t.state) || pb.Topic != t.topic {
		pb.ResetDiscovery()
	}

	t.state.Mode = domain.ModePlanBuild
	pb.Step = domain.StepDiscovery
	pb.Topic = t.topic

	recordDiscoveryAnswer(pb, t.text)
	q, ok := nextDiscoveryQuestion(pb)
	if !ok {
		return s.handleDraft(ctx, t)
	}

	t.step = domain.StepDiscovery
	t.replyKind = domain.KindQuestion
	resp := coachReply(q.text, domain.ModePlanBuild)
	resp.Effects.SavedConfidence = t.savedConfidence
	resp.UI.ShowPlanSidebar = true
	return resp
}

func (s *Service) handleDraft(ctx context.Context, t *turn) *ChatResponse {
	pb := &t.state.PlanBuild
	t.state.Mode = domain.ModePlanBuild
	pb.Topic = t.topic

	if !ShouldCreateNewPlan(t.state, t.topic, t.explicitNewPlan) {
		pb.Locked = true
		return s.handleRefine(ctx, t)
	}

	plan := s.builder.Build(ctx, t.topic, pb.Answers, t.text)
	t.state.ActivatePlan(plan)
	pb.Locked = true
	pb.Step = domain.StepRefine
	pb.ResetDiscovery()

	t.step = domain.StepDraft
	t.replyKind = domain.KindPlan
	resp := coachReply(fmt.Sprintf(draftReplyFormat, plan.Title), domain.ModePlanBuild)
	resp.Effects.SavedConfidence = t.savedConfidence
	resp.Effects.CreatedPlanID = plan.ID
	return resp.withPlan(plan)
}

func (s *Service) handleRefine(ctx context.Context, t *turn) *ChatResponse {
	pb := &t.state.PlanBuild
	plan := t.state.ActivePlanFor(t.topic)
	if plan == nil {
		pb.Locked = false
		return s.handleDraft(ctx, t)
	}

	t.state.Mode = domain.ModePlanBuild
	pb.Step = domain.StepRefine
	pb.Topic = t.topic
	pb.ActivePlanID = plan.ID
	t.step = domain.StepRefine
	t.replyKind = domain.KindPlan

	applied, err := s.refiner.Refine(ctx, plan, t.text)
	var resp *ChatResponse
	switch {
	case err != nil:
		resp = coachReply(s.apology(t, err), domain.ModePlanBuild)
	case applied == 0:
		resp = coachReply(refineNoopText, domain.ModePlanBuild)
	default:
		resp = coachReply(refineReplyText, domain.ModePlanBuild)
		resp.Effects.UpdatedPlanID = plan.ID
	}
	resp.Effects.SavedConfidence = t.savedConfidence
	return resp.withPlan(plan)
}

func (s *Service) apology(t *turn, err error) string {
	s.logger.Error("Model call failed", "user_id", t.userID, "topic", t.topic, "error", err)
	if llm.IsQuotaError(err) {
		return quotaText
	}
	return apologyText
}
