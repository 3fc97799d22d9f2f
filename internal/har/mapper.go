package har

import "strings"

// Intensity levels surfaced on the 5-step UI scale. The current rules
// only produce three of the five steps; 2 and 4 are reserved for
// finer-grained models.
const (
	LevelSedentary = 1 // sitting, standing
	LevelModerate  = 3 // walking, stairs, anything unrecognized
	LevelVigorous  = 5 // jogging, running
)

// LevelCount is the size of the UI intensity scale.
const LevelCount = 5

// LevelForActivity maps a class label to an intensity level. Matching
// is case-insensitive and the first rule wins. The rules key off
// display names, so renaming labels in the label asset silently changes
// the mapping; keep these substrings in sync with the trained set.
func LevelForActivity(label string) int {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "sit") || strings.Contains(l, "stand"):
		return LevelSedentary
	case l == "walking":
		return LevelModerate
	case l == "upstairs" || l == "downstairs":
		return LevelModerate
	case strings.Contains(l, "jogging") || strings.Contains(l, "running"):
		return LevelVigorous
	default:
		return LevelModerate
	}
}
