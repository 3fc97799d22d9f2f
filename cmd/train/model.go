package main

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/stride-data/activity.report/internal/har"
)

// trainConfig bundles the gradient-descent knobs.
type trainConfig struct {
	Epochs   int
	Rate     float64
	L2       float64
	LogEvery int // epochs between loss lines, 0 silences them
}

// fitScaler computes per-feature mean and population standard deviation
// over the training windows. Population deviation (divide by n) matches
// the runtime feature extractor; the scale of a constant feature comes
// out 0 and relies on the runtime epsilon clamp.
func fitScaler(windows []labeledWindow) (*har.ScalerParams, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("no windows to fit the scaler on")
	}

	params := &har.ScalerParams{
		Mean:  make([]float64, har.FeatureCount),
		Scale: make([]float64, har.FeatureCount),
	}
	n := float64(len(windows))

	for _, w := range windows {
		for i, v := range w.Features {
			params.Mean[i] += v
		}
	}
	for i := range params.Mean {
		params.Mean[i] /= n
	}

	for _, w := range windows {
		for i, v := range w.Features {
			d := v - params.Mean[i]
			params.Scale[i] += d * d
		}
	}
	for i := range params.Scale {
		params.Scale[i] = math.Sqrt(params.Scale[i] / n)
	}
	return params, nil
}

// designMatrix standardizes the windows through the exact runtime
// Transform path and stacks them into an n x FeatureCount matrix plus
// the aligned class index slice.
func designMatrix(windows []labeledWindow, scaler *har.ScalerParams, classes []string) (*mat.Dense, []int, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	X := mat.NewDense(len(windows), har.FeatureCount, nil)
	y := make([]int, len(windows))
	for i, w := range windows {
		scaled, err := scaler.Transform(w.Features)
		if err != nil {
			return nil, nil, err
		}
		X.SetRow(i, scaled[:])
		cls, ok := index[w.Label]
		if !ok {
			return nil, nil, fmt.Errorf("window %d: label %q not in class list", i, w.Label)
		}
		y[i] = cls
	}
	return X, y, nil
}

// trainSoftmax fits a multinomial logistic model by full-batch gradient
// descent. The returned weights follow the runtime bundle layout
// (one row per class).
func trainSoftmax(X *mat.Dense, y []int, classes int, cfg trainConfig, logf func(format string, args ...interface{})) (har.SoftmaxModel, error) {
	n, d := X.Dims()
	if n == 0 {
		return har.SoftmaxModel{}, fmt.Errorf("no training rows")
	}
	if len(y) != n {
		return har.SoftmaxModel{}, fmt.Errorf("have %d rows but %d labels", n, len(y))
	}
	if classes < 2 {
		return har.SoftmaxModel{}, fmt.Errorf("need at least 2 classes, got %d", classes)
	}
	for i, cls := range y {
		if cls < 0 || cls >= classes {
			return har.SoftmaxModel{}, fmt.Errorf("row %d: class %d out of range", i, cls)
		}
	}

	W := mat.NewDense(classes, d, nil)
	bias := make([]float64, classes)
	fn := float64(n)

	var logits, grad, reg mat.Dense
	P := mat.NewDense(n, classes, nil)
	row := make([]float64, classes)
	gradBias := make([]float64, classes)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		// probabilities and data loss
		logits.Mul(X, W.T())
		loss := 0.0
		for i := 0; i < n; i++ {
			maxLogit := math.Inf(-1)
			for j := 0; j < classes; j++ {
				row[j] = logits.At(i, j) + bias[j]
				if row[j] > maxLogit {
					maxLogit = row[j]
				}
			}
			sum := 0.0
			for j := 0; j < classes; j++ {
				row[j] = math.Exp(row[j] - maxLogit)
				sum += row[j]
			}
			for j := 0; j < classes; j++ {
				P.Set(i, j, row[j]/sum)
			}
			loss -= math.Log(math.Max(P.At(i, y[i]), 1e-300))
		}
		loss /= fn

		// P - Y in place, then the weight and bias gradients
		for i := 0; i < n; i++ {
			P.Set(i, y[i], P.At(i, y[i])-1)
		}
		grad.Mul(P.T(), X)
		grad.Scale(1/fn, &grad)
		if cfg.L2 > 0 {
			reg.Scale(cfg.L2, W)
			grad.Add(&grad, &reg)
			loss += 0.5 * cfg.L2 * mat.Norm(W, 2) * mat.Norm(W, 2)
		}
		for j := 0; j < classes; j++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += P.At(i, j)
			}
			gradBias[j] = sum / fn
		}

		grad.Scale(cfg.Rate, &grad)
		W.Sub(W, &grad)
		for j := range bias {
			bias[j] -= cfg.Rate * gradBias[j]
		}

		if cfg.LogEvery > 0 && (epoch%cfg.LogEvery == 0 || epoch == cfg.Epochs) {
			logf("epoch %d/%d: loss %.4f", epoch, cfg.Epochs, loss)
		}
	}

	weights := make([][]float64, classes)
	for c := 0; c < classes; c++ {
		weights[c] = mat.Row(nil, c, W)
	}
	return har.SoftmaxModel{Weights: weights, Bias: bias}, nil
}

// accuracy scores a fitted model over already-standardized rows.
// Returns overall accuracy plus the per-class recall.
func accuracy(c *har.SoftmaxClassifier, X *mat.Dense, y []int, classes int) (float64, []float64, error) {
	n, _ := X.Dims()
	if n == 0 {
		return 0, nil, nil
	}

	ctx := context.Background()
	hits := 0
	classHits := make([]float64, classes)
	classTotals := make([]float64, classes)
	for i := 0; i < n; i++ {
		dist, err := c.Predict(ctx, mat.Row(nil, i, X))
		if err != nil {
			return 0, nil, fmt.Errorf("scoring row %d: %w", i, err)
		}
		classTotals[y[i]]++
		if har.ArgMax(dist) == y[i] {
			hits++
			classHits[y[i]]++
		}
	}

	recall := make([]float64, classes)
	for c := range recall {
		if classTotals[c] > 0 {
			recall[c] = classHits[c] / classTotals[c]
		}
	}
	return float64(hits) / float64(n), recall, nil
}
