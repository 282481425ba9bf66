package coach

import (
	"regexp"
	"strings"
)

// Intent is the set of flags raised by a user message. Flags are independent;
// the router decides precedence.
type Intent struct {
	Greeting    bool
	NewPlan     bool
	PlanRequest bool
	Refine      bool
	Skip        bool
	ShowPlan    bool
}

type intentRule struct {
	patterns []*regexp.Regexp
	set      func(*Intent)
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// greetingPattern must match the whole message.
var greetingPattern = regexp.MustCompile(
	`^(hi|hello|hey|hiya|yo|sup|howdy|good (morning|afternoon|evening)|thanks|thank you|thx)( there| coach)?[\s!.,:)]*$`,
)

var intentRules = []intentRule{
	{
		patterns: compileAll(
			`\bnew plan\b`,
			`\bcreate a new plan\b`,
			`\bmake a new plan\b`,
			`\bstart over\b`,
			`\brestart\b`,
			`\bredo\b`,
			`\bre-do\b`,
			`\breplace the plan\b`,
			`\bthis plan (doesn'?t|does not) work\b`,
		),
		set: func(i *Intent) { i.NewPlan = true },
	},
	{
		patterns: compileAll(
			`\bplan\b`,
			`\broadmap\b`,
			`\bschedule\b`,
			`\bprep\b`,
			`\bprepare\b`,
			`\bhelp me\b`,
			`\borganize\b`,
			`\bgame plan\b`,
		),
		set: func(i *Intent) { i.PlanRequest = true },
	},
	{
		patterns: compileAll(
			`\badjust\b`,
			`\brefine\b`,
			`\bedit\b`,
			`\bupdate\b`,
			`\bshorter\b`,
			`\blonger\b`,
			`\bfocus on\b`,
			`\badd\b`,
			`\bremove\b`,
			`\bchange\b`,
		),
		set: func(i *Intent) { i.Refine = true },
	},
	{
		patterns: compileAll(
			`\bskip\b`,
			`\bjust chat\b`,
			`\bno plan\b`,
			`\bstop\b`,
			`\bnot now\b`,
		),
		set: func(i *Intent) { i.Skip = true },
	},
	{
		patterns: compileAll(
			`\bshow (me )?(my |the )?(current )?plan\b`,
			`\b(view|see|open) (my |the )?(current )?plan\b`,
			`\bwhat'?s (my|the) plan\b`,
			`\bwhat is (my|the) plan\b`,
			`\bwhere is (my|the) plan\b`,
		),
		set: func(i *Intent) { i.ShowPlan = true },
	},
}

// Classify raises intent flags for text. Matching is case-insensitive.
func Classify(text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))

	var in Intent
	in.Greeting = greetingPattern.MatchString(t)
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(t) {
				rule.set(&in)
				break
			}
		}
	}
	return in
}
