package har

import (
	"time"

	"github.com/montanaflynn/stats"
)

// TimedResult pairs a prediction with its wall-clock timestamp.
type TimedResult struct {
	At     time.Time        `json:"at"`
	Result PredictionResult `json:"result"`
}

// SessionSummary aggregates the predictions of one capture session.
type SessionSummary struct {
	Predictions      int            `json:"predictions"`
	First            time.Time      `json:"first,omitempty"`
	Last             time.Time      `json:"last,omitempty"`
	DominantLabel    string         `json:"dominant_label,omitempty"`
	DominantLevel    int            `json:"dominant_level,omitempty"`
	MeanConfidence   float64        `json:"mean_confidence"`
	MedianConfidence float64        `json:"median_confidence"`
	LabelCounts      map[string]int `json:"label_counts,omitempty"`
	LevelCounts      map[int]int    `json:"level_counts,omitempty"`
}

// Summarize aggregates session predictions. The dominant label is the
// most frequent one (ties resolve lexicographically); the dominant
// level is the statistical mode of the level sequence (ties resolve to
// the lowest level).
func Summarize(results []TimedResult) SessionSummary {
	out := SessionSummary{
		LabelCounts: map[string]int{},
		LevelCounts: map[int]int{},
	}
	if len(results) == 0 {
		return out
	}
	out.Predictions = len(results)
	out.First = results[0].At
	out.Last = results[len(results)-1].At

	conf := make(stats.Float64Data, 0, len(results))
	levels := make(stats.Float64Data, 0, len(results))
	for _, r := range results {
		out.LabelCounts[r.Result.Label]++
		out.LevelCounts[r.Result.Level]++
		conf = append(conf, r.Result.Confidence)
		levels = append(levels, float64(r.Result.Level))
	}

	bestN := -1
	for label, n := range out.LabelCounts {
		if n > bestN || (n == bestN && label < out.DominantLabel) {
			out.DominantLabel, bestN = label, n
		}
	}

	if mean, err := conf.Mean(); err == nil {
		out.MeanConfidence = mean
	}
	if median, err := conf.Median(); err == nil {
		out.MedianConfidence = median
	}

	out.DominantLevel = dominantLevel(levels, out.LevelCounts)
	return out
}

// dominantLevel prefers the statistical mode; stats.Mode returns an
// empty slice when every value occurs equally often, in which case the
// level counts break the tie toward the lowest level.
func dominantLevel(levels stats.Float64Data, counts map[int]int) int {
	if modes, err := levels.Mode(); err == nil && len(modes) > 0 {
		best := modes[0]
		for _, m := range modes[1:] {
			if m < best {
				best = m
			}
		}
		return int(best)
	}
	best, bestN := 0, -1
	for level, n := range counts {
		if n > bestN || (n == bestN && level < best) {
			best, bestN = level, n
		}
	}
	return best
}
