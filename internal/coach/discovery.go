package coach

import "github.com/ashureev/betterme/internal/domain"

type discoveryQuestion struct {
	id   string
	text string
}

var discoveryQuestions = []discoveryQuestion{
	{domain.QuestionDeadline, "When is the deadline (or when do you want to feel ready)? If you’re not sure, just say “soon.”"},
	{domain.QuestionTarget, "What’s the main target: ML Ops / Data Engineering / both? (One word is fine.)"},
}

// recordDiscoveryAnswer stores text as the answer to the pending question.
func recordDiscoveryAnswer(pb *domain.PlanBuild, text string) {
	if pb.PendingQuestion == "" {
		return
	}
	pb.Answers[pb.PendingQuestion] = text
	pb.PendingQuestion = ""
}

// nextDiscoveryQuestion marks the next question as asked, or returns false
// when every question has been asked.
func nextDiscoveryQuestion(pb *domain.PlanBuild) (discoveryQuestion, bool) {
	if pb.QuestionsAsked >= len(discoveryQuestions) {
		return discoveryQuestion{}, false
	}
	q := discoveryQuestions[pb.QuestionsAsked]
	pb.PendingQuestion = q.id
	pb.QuestionsAsked++
	return q, true
}
