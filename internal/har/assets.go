package har

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
)

// Asset file names inside a bundle directory.
const (
	ModelAssetName  = "model.json"
	ScalerAssetName = "scaler.json"
	LabelsAssetName = "labels.json"
)

// AssetBundle is the trio of artifacts the pipeline needs before it can
// predict. Loaded once; immutable afterwards.
type AssetBundle struct {
	Classifier Classifier
	Scaler     *ScalerParams
	Labels     LabelSet
}

// Validate cross-checks the three artifacts against each other.
func (b *AssetBundle) Validate() error {
	if b.Classifier == nil || b.Scaler == nil || len(b.Labels) == 0 {
		return &AssetLoadError{Asset: "bundle", Err: fmt.Errorf("incomplete bundle")}
	}
	if sc, ok := b.Classifier.(*SoftmaxClassifier); ok && sc.Classes() != len(b.Labels) {
		return &AssetLoadError{
			Asset: "labels",
			Err:   fmt.Errorf("label set spans %d classes, model scores %d", len(b.Labels), sc.Classes()),
		}
	}
	return nil
}

// AssetLoader fetches an AssetBundle. Load may block on slow storage;
// the pipeline imposes no deadline.
type AssetLoader interface {
	Load(ctx context.Context) (*AssetBundle, error)
}

// FileAssetLoader loads model.json, scaler.json, and labels.json from a
// directory.
type FileAssetLoader struct {
	Dir string
}

// Load implements AssetLoader.
func (l FileAssetLoader) Load(ctx context.Context) (*AssetBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	classifier, err := LoadSoftmaxClassifier(filepath.Join(l.Dir, ModelAssetName))
	if err != nil {
		return nil, &AssetLoadError{Asset: "model", Err: err}
	}
	scaler, err := LoadScalerParams(filepath.Join(l.Dir, ScalerAssetName))
	if err != nil {
		return nil, &AssetLoadError{Asset: "scaler", Err: err}
	}
	labels, err := LoadLabelSet(filepath.Join(l.Dir, LabelsAssetName))
	if err != nil {
		return nil, &AssetLoadError{Asset: "labels", Err: err}
	}
	return newBundle(classifier, scaler, labels)
}

//go:embed demo/model.json demo/scaler.json demo/labels.json
var demoAssets embed.FS

// DemoAssetLoader serves the embedded demo bundle used by -dev mode.
// The bundle was fitted on public phone-accelerometer recordings and is
// good enough to exercise the full pipeline without training anything.
type DemoAssetLoader struct{}

// Load implements AssetLoader.
func (DemoAssetLoader) Load(ctx context.Context) (*AssetBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	read := func(name string) ([]byte, error) {
		return demoAssets.ReadFile("demo/" + name)
	}

	modelData, err := read(ModelAssetName)
	if err != nil {
		return nil, &AssetLoadError{Asset: "model", Err: err}
	}
	classifier, err := ParseSoftmaxClassifier(modelData)
	if err != nil {
		return nil, &AssetLoadError{Asset: "model", Err: err}
	}

	scalerData, err := read(ScalerAssetName)
	if err != nil {
		return nil, &AssetLoadError{Asset: "scaler", Err: err}
	}
	scaler, err := ParseScalerParams(scalerData)
	if err != nil {
		return nil, &AssetLoadError{Asset: "scaler", Err: err}
	}

	labelData, err := read(LabelsAssetName)
	if err != nil {
		return nil, &AssetLoadError{Asset: "labels", Err: err}
	}
	labels, err := ParseLabelSet(labelData)
	if err != nil {
		return nil, &AssetLoadError{Asset: "labels", Err: err}
	}

	return newBundle(classifier, scaler, labels)
}

func newBundle(c Classifier, p *ScalerParams, ls LabelSet) (*AssetBundle, error) {
	b := &AssetBundle{Classifier: c, Scaler: p, Labels: ls}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
