package har

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModelJSON  = `{"model":"t","weights":[[0,0,0,0,0,0,0],[0,0,0,0,0,0,1]],"bias":[0,0]}`
	testScalerJSON = `{"mean":[0,0,0,0,0,0,0],"scale":[1,1,1,1,1,1,1]}`
	testLabelsJSON = `["Sitting","Jogging"]`
)

func writeAsset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileAssetLoader(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, ModelAssetName, testModelJSON)
	writeAsset(t, dir, ScalerAssetName, testScalerJSON)
	writeAsset(t, dir, LabelsAssetName, testLabelsJSON)

	bundle, err := FileAssetLoader{Dir: dir}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t", bundle.Classifier.Model())
	assert.Len(t, bundle.Labels, 2)
	assert.Equal(t, "Jogging", bundle.Labels.Label(1))
}

func TestFileAssetLoaderMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, ModelAssetName, testModelJSON)

	_, err := FileAssetLoader{Dir: dir}.Load(context.Background())
	require.Error(t, err)
	var ale *AssetLoadError
	require.ErrorAs(t, err, &ale)
	assert.Equal(t, "scaler", ale.Asset)
}

func TestFileAssetLoaderMalformed(t *testing.T) {
	cases := []struct {
		name      string
		corrupt   string
		wantAsset string
	}{
		{"model", ModelAssetName, "model"},
		{"scaler", ScalerAssetName, "scaler"},
		{"labels", LabelsAssetName, "labels"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeAsset(t, dir, ModelAssetName, testModelJSON)
			writeAsset(t, dir, ScalerAssetName, testScalerJSON)
			writeAsset(t, dir, LabelsAssetName, testLabelsJSON)
			writeAsset(t, dir, tc.corrupt, "{not json")

			_, err := FileAssetLoader{Dir: dir}.Load(context.Background())
			require.Error(t, err)
			var ale *AssetLoadError
			require.ErrorAs(t, err, &ale)
			assert.Equal(t, tc.wantAsset, ale.Asset)
		})
	}
}

func TestFileAssetLoaderLabelModelMismatch(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, ModelAssetName, testModelJSON)
	writeAsset(t, dir, ScalerAssetName, testScalerJSON)
	writeAsset(t, dir, LabelsAssetName, `["Sitting","Jogging","Walking"]`)

	_, err := FileAssetLoader{Dir: dir}.Load(context.Background())
	require.Error(t, err)
	var ale *AssetLoadError
	require.ErrorAs(t, err, &ale)
	assert.Equal(t, "labels", ale.Asset)
}

func TestDemoAssetLoader(t *testing.T) {
	bundle, err := DemoAssetLoader{}.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, bundle.Validate())

	sc, ok := bundle.Classifier.(*SoftmaxClassifier)
	require.True(t, ok)
	assert.Equal(t, len(bundle.Labels), sc.Classes())
}

func TestAssetLoaderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DemoAssetLoader{}.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = FileAssetLoader{Dir: t.TempDir()}.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBundleValidateIncomplete(t *testing.T) {
	b := &AssetBundle{}
	err := b.Validate()
	var ale *AssetLoadError
	require.ErrorAs(t, err, &ale)
	assert.Equal(t, "bundle", ale.Asset)
}
