package har

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// SoftmaxModel is the JSON layout of the bundled linear classifier:
// logits = Weights*x + Bias, probabilities via softmax. Bundles are
// produced by cmd/train.
type SoftmaxModel struct {
	Name    string      `json:"model"`
	Weights [][]float64 `json:"weights"` // [class][feature]
	Bias    []float64   `json:"bias"`    // [class]
}

// SoftmaxClassifier evaluates a SoftmaxModel. It is stateless between
// calls and safe for concurrent use.
type SoftmaxClassifier struct {
	model SoftmaxModel
}

// NewSoftmaxClassifier wraps an already validated model. Most callers
// want LoadSoftmaxClassifier or ParseSoftmaxClassifier instead.
func NewSoftmaxClassifier(model SoftmaxModel) (*SoftmaxClassifier, error) {
	c := &SoftmaxClassifier{model: model}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.model.Name == "" {
		c.model.Name = "softmax-linear"
	}
	return c, nil
}

// LoadSoftmaxClassifier reads a model bundle from a JSON file.
func LoadSoftmaxClassifier(path string) (*SoftmaxClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model bundle: %w", err)
	}
	return ParseSoftmaxClassifier(data)
}

// ParseSoftmaxClassifier decodes and shape-checks a model bundle.
func ParseSoftmaxClassifier(data []byte) (*SoftmaxClassifier, error) {
	var m SoftmaxModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding model bundle: %w", err)
	}
	return NewSoftmaxClassifier(m)
}

func (c *SoftmaxClassifier) validate() error {
	if len(c.model.Weights) == 0 {
		return fmt.Errorf("model bundle has no weight rows")
	}
	if len(c.model.Bias) != len(c.model.Weights) {
		return &DimensionMismatchError{Got: len(c.model.Bias), Want: len(c.model.Weights)}
	}
	for i, row := range c.model.Weights {
		if len(row) != FeatureCount {
			return fmt.Errorf("weight row %d: %w", i, &DimensionMismatchError{Got: len(row), Want: FeatureCount})
		}
	}
	return nil
}

// Classes reports how many classes the model scores.
func (c *SoftmaxClassifier) Classes() int { return len(c.model.Weights) }

// Model implements Classifier.
func (c *SoftmaxClassifier) Model() string { return c.model.Name }

// Predict implements Classifier with a numerically stable softmax over
// the linear logits.
func (c *SoftmaxClassifier) Predict(ctx context.Context, features []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != FeatureCount {
		return nil, &DimensionMismatchError{Got: len(features), Want: FeatureCount}
	}

	logits := make([]float64, len(c.model.Weights))
	maxLogit := math.Inf(-1)
	for i, row := range c.model.Weights {
		v := c.model.Bias[i]
		for j, w := range row {
			v += w * features[j]
		}
		logits[i] = v
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxLogit)
		logits[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("softmax collapsed: sum %v", sum)
	}
	for i := range logits {
		logits[i] /= sum
	}
	return logits, nil
}
