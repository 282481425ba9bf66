package coach

import (
	"regexp"
	"strconv"
	"strings"
)

var confidencePattern = regexp.MustCompile(`^(\d{1,2})(?:\s*/\s*10)?$`)

// ParseConfidence accepts a bare rating like "7" or "7/10" in the range 0..10.
func ParseConfidence(text string) (int, bool) {
	m := confidencePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v < 0 || v > 10 {
		return 0, false
	}
	return v, true
}
