package har

import "context"

// Classifier scores one standardized feature vector, returning a
// probability distribution aligned with the loaded LabelSet. Predict
// may block (remote models, cold weight mmaps); callers pass a context
// but the pipeline imposes no deadline of its own.
type Classifier interface {
	Predict(ctx context.Context, features []float64) ([]float64, error)

	// Model identifies the loaded model for logs and persisted rows.
	Model() string
}

// ArgMax returns the index of the largest value, breaking ties toward
// the lowest index. Returns -1 for an empty distribution.
func ArgMax(dist []float64) int {
	if len(dist) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(dist); i++ {
		if dist[i] > dist[best] {
			best = i
		}
	}
	return best
}
