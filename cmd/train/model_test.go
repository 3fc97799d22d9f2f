package main

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stride-data/activity.report/internal/har"
)

const tolerance = 1e-9

// syntheticWindows builds two well-separated classes directly in
// feature space: "Sitting" hugs gravity with no spread, "Jogging"
// oscillates hard.
func syntheticWindows(perClass int) []labeledWindow {
	var windows []labeledWindow
	for i := 0; i < perClass; i++ {
		jitter := float64(i) * 0.01
		windows = append(windows, labeledWindow{
			Label:    "Sitting",
			Features: har.FeatureVector{0.1 + jitter, 9.8, 0.2, 0.05, 0.05, 0.05, 9.81 + jitter},
		})
		windows = append(windows, labeledWindow{
			Label:    "Jogging",
			Features: har.FeatureVector{1.5 - jitter, 9.0, 1.1, 4.2, 5.0 + jitter, 3.9, 12.4},
		})
	}
	return windows
}

func TestFitScaler(t *testing.T) {
	windows := []labeledWindow{
		{Features: har.FeatureVector{1, 2, 3, 4, 5, 6, 7}},
		{Features: har.FeatureVector{3, 2, 5, 4, 9, 6, 11}},
	}
	scaler, err := fitScaler(windows)
	if err != nil {
		t.Fatalf("fitScaler: %v", err)
	}

	// means of the two rows
	wantMean := []float64{2, 2, 4, 4, 7, 6, 9}
	for i, want := range wantMean {
		if math.Abs(scaler.Mean[i]-want) > tolerance {
			t.Errorf("mean[%d] = %v, want %v", i, scaler.Mean[i], want)
		}
	}
	// population deviation: constant features scale to exactly 0
	wantScale := []float64{1, 0, 1, 0, 2, 0, 2}
	for i, want := range wantScale {
		if math.Abs(scaler.Scale[i]-want) > tolerance {
			t.Errorf("scale[%d] = %v, want %v", i, scaler.Scale[i], want)
		}
	}
}

func TestFitScalerEmpty(t *testing.T) {
	if _, err := fitScaler(nil); err == nil {
		t.Error("expected error for empty window set")
	}
}

func TestTrainSoftmaxSeparatesClasses(t *testing.T) {
	windows := syntheticWindows(20)
	classes := classList(windows)

	scaler, err := fitScaler(windows)
	if err != nil {
		t.Fatalf("fitScaler: %v", err)
	}
	X, y, err := designMatrix(windows, scaler, classes)
	if err != nil {
		t.Fatalf("designMatrix: %v", err)
	}

	model, err := trainSoftmax(X, y, len(classes), trainConfig{Epochs: 200, Rate: 0.5}, func(string, ...interface{}) {})
	if err != nil {
		t.Fatalf("trainSoftmax: %v", err)
	}
	model.Name = "test"

	classifier, err := har.NewSoftmaxClassifier(model)
	if err != nil {
		t.Fatalf("NewSoftmaxClassifier: %v", err)
	}

	acc, recall, err := accuracy(classifier, X, y, len(classes))
	if err != nil {
		t.Fatalf("accuracy: %v", err)
	}
	if acc != 1.0 {
		t.Errorf("accuracy = %v, want 1.0 on linearly separable data", acc)
	}
	for i, r := range recall {
		if r != 1.0 {
			t.Errorf("recall[%s] = %v, want 1.0", classes[i], r)
		}
	}

	// the distribution a trained model emits still behaves like one
	dist, err := classifier.Predict(context.Background(), mat.Row(nil, 0, X))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	sum := 0.0
	for _, p := range dist {
		if p < 0 {
			t.Errorf("negative probability %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}
}

func TestTrainSoftmaxRejectsDegenerateInput(t *testing.T) {
	windows := syntheticWindows(2)
	classes := classList(windows)
	scaler, _ := fitScaler(windows)
	X, y, err := designMatrix(windows, scaler, classes)
	if err != nil {
		t.Fatalf("designMatrix: %v", err)
	}

	if _, err := trainSoftmax(X, y, 1, trainConfig{Epochs: 1, Rate: 0.1}, func(string, ...interface{}) {}); err == nil {
		t.Error("expected error for a single class")
	}
	if _, err := trainSoftmax(X, y[:1], 2, trainConfig{Epochs: 1, Rate: 0.1}, func(string, ...interface{}) {}); err == nil {
		t.Error("expected error for mismatched label count")
	}
}

func TestDesignMatrixRejectsUnknownLabel(t *testing.T) {
	windows := syntheticWindows(1)
	scaler, _ := fitScaler(windows)
	if _, _, err := designMatrix(windows, scaler, []string{"Sitting"}); err == nil {
		t.Error("expected error for a window labelled outside the class list")
	}
}

func TestWriteBundleRoundTrip(t *testing.T) {
	windows := syntheticWindows(10)
	classes := classList(windows)
	scaler, _ := fitScaler(windows)
	X, y, err := designMatrix(windows, scaler, classes)
	if err != nil {
		t.Fatalf("designMatrix: %v", err)
	}
	model, err := trainSoftmax(X, y, len(classes), trainConfig{Epochs: 50, Rate: 0.5}, func(string, ...interface{}) {})
	if err != nil {
		t.Fatalf("trainSoftmax: %v", err)
	}
	model.Name = "roundtrip-test"

	dir := t.TempDir()
	if err := writeBundle(dir, model, scaler, classes); err != nil {
		t.Fatalf("writeBundle: %v", err)
	}

	// the daemon's loader must accept what the trainer wrote
	bundle, err := har.FileAssetLoader{Dir: dir}.Load(context.Background())
	if err != nil {
		t.Fatalf("loading written bundle: %v", err)
	}
	if bundle.Classifier.Model() != "roundtrip-test" {
		t.Errorf("model name = %q, want roundtrip-test", bundle.Classifier.Model())
	}
	if len(bundle.Labels) != len(classes) {
		t.Errorf("bundle has %d labels, want %d", len(bundle.Labels), len(classes))
	}
}
