package coach

import "github.com/ashureev/betterme/internal/domain"

// Route is the routing decision for one turn.
type Route struct {
	Mode domain.Mode
	Step domain.Step
	// ShowPlan attaches the active plan to a CHAT reply.
	ShowPlan bool
	// Rule names the rule that fired, for logs and tests.
	Rule string
}

type routeInput struct {
	intent        Intent
	state         *domain.UserState
	hasActivePlan bool
}

type routeRule struct {
	name  string
	match func(routeInput) bool
	route Route
}

var (
	chatRoute      = Route{Mode: domain.ModeChat}
	viewPlanRoute  = Route{Mode: domain.ModeChat, ShowPlan: true}
	discoveryRoute = Route{Mode: domain.ModePlanBuild, Step: domain.StepDiscovery}
	draftRoute     = Route{Mode: domain.ModePlanBuild, Step: domain.StepDraft}
	refineRoute    = Route{Mode: domain.ModePlanBuild, Step: domain.StepRefine}
)

// Evaluated top to bottom; the first match wins.
var routeRules = []routeRule{
	{
		name: "greeting_or_skip",
		match: func(in routeInput) bool {
			// A pleasantry while a question is pending is the answer.
			if in.intent.Greeting && !discoveryInProgress(in.state) {
				return true
			}
			return in.intent.Skip
		},
		route: chatRoute,
	},
	{
		name:  "explicit_new_plan",
		match: func(in routeInput) bool { return in.intent.NewPlan },
		route: draftRoute,
	},
	{
		name:  "refine_active_plan",
		match: func(in routeInput) bool { return in.intent.Refine && in.hasActivePlan },
		route: refineRoute,
	},
	{
		name:  "show_active_plan",
		match: func(in routeInput) bool { return in.intent.ShowPlan && in.hasActivePlan },
		route: viewPlanRoute,
	},
	{
		name:  "plan_request_active_plan",
		match: func(in routeInput) bool { return in.intent.PlanRequest && in.hasActivePlan },
		route: viewPlanRoute,
	},
	{
		name:  "plan_request",
		match: func(in routeInput) bool { return in.intent.PlanRequest },
		route: discoveryRoute,
	},
	{
		name:  "continue_discovery",
		match: func(in routeInput) bool { return discoveryInProgress(in.state) },
		route: discoveryRoute,
	},
}

// Decide routes a turn for topic given the intent flags of the user message.
func Decide(state *domain.UserState, intent Intent, topic string) Route {
	in := routeInput{
		intent:        intent,
		state:         state,
		hasActivePlan: state.ActivePlanFor(topic) != nil,
	}
	for _, r := range routeRules {
		if r.match(in) {
			route := r.route
			route.Rule = r.name
			return route
		}
	}
	route := chatRoute
	route.Rule = "default"
	return route
}

// discoveryInProgress reports whether the previous turn left discovery
// unfinished: a question is awaiting its answer or fewer than all were asked.
func discoveryInProgress(state *domain.UserState) bool {
	pb := state.PlanBuild
	if state.Mode != domain.ModePlanBuild || pb.Step != domain.StepDiscovery {
		return false
	}
	return pb.PendingQuestion != "" || pb.QuestionsAsked < len(discoveryQuestions)
}
