package har

import "fmt"

// AssetLoadError reports a failure to fetch or decode one of the model
// assets (classifier bundle, scaler params, label set).
type AssetLoadError struct {
	Asset string
	Err   error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("loading %s asset: %v", e.Asset, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// PermissionDeniedError reports that a capture source could not be
// opened because access was refused.
type PermissionDeniedError struct {
	Source string
	Err    error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied opening %s: %v", e.Source, e.Err)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// InvalidWindowError reports a feature extraction attempt over an
// unusable window.
type InvalidWindowError struct {
	Len int
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window: %d samples", e.Len)
}

// DimensionMismatchError reports an array whose length does not match
// the feature vector or the model shape.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: got %d values, want %d", e.Got, e.Want)
}

// MissingScalerError reports a standardization attempt before scaler
// params were loaded.
type MissingScalerError struct{}

func (e *MissingScalerError) Error() string { return "scaler params not loaded" }

// PredictionRuntimeError wraps a classifier failure during a prediction
// cycle.
type PredictionRuntimeError struct {
	Err error
}

func (e *PredictionRuntimeError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionRuntimeError) Unwrap() error { return e.Err }
