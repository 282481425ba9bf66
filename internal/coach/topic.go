package coach

import (
	"fmt"
	"regexp"
	"strings"
)

// Topic keys.
const (
	TopicInterview    = "interview_confidence"
	TopicWork         = "work_focus"
	TopicRelationship = "relationship_communication"
	TopicAppearance   = "appearance_confidence"
	TopicGeneral      = "general"
)

type topicBucket struct {
	topic    string
	keywords []string
}

// First matching bucket wins.
var topicBuckets = []topicBucket{
	{TopicInterview, []string{"interview", "behavioral", "system design", "leetcode", "ml ops", "mle", "data engineer"}},
	{TopicWork, []string{"work", "job", "boss", "coworker", "deadline", "productivity", "focus"}},
	{TopicRelationship, []string{"relationship", "partner", "husband", "wife", "dating", "communication"}},
	{TopicAppearance, []string{"appearance", "body image", "looks", "weight", "skin", "hair"}},
}

var (
	nonKeyChars = regexp.MustCompile(`[^a-z0-9_]+`)
	underscores = regexp.MustCompile(`_+`)
)

// NormalizeTopic turns free text into a topic key, or "" when nothing remains.
func NormalizeTopic(topic string) string {
	t := strings.ToLower(strings.TrimSpace(topic))
	t = nonKeyChars.ReplaceAllString(t, "_")
	t = underscores.ReplaceAllString(t, "_")
	return strings.Trim(t, "_")
}

// keywordTopic returns the first keyword bucket matching text.
func keywordTopic(text string) (string, bool) {
	t := strings.ToLower(text)
	for _, b := range topicBuckets {
		for _, k := range b.keywords {
			if strings.Contains(t, k) {
				return b.topic, true
			}
		}
	}
	return "", false
}

// InferTopic maps text to a topic key, falling back to the profile's focus
// and then to TopicGeneral.
func InferTopic(text string, profile map[string]any) string {
	if topic, ok := keywordTopic(text); ok {
		return topic
	}
	if focus := profileString(profile, "focus"); focus != "" {
		if key := NormalizeTopic(focus); key != "" {
			return key
		}
	}
	return TopicGeneral
}

func profileString(profile map[string]any, key string) string {
	v, ok := profile[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
