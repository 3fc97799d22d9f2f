package har

import (
	"encoding/json"
	"fmt"
	"os"
)

// ScaleEpsilon is the floor applied to scale entries during
// standardization. A scaler fitted on a constant feature carries a
// zero scale, which would otherwise divide to Inf.
const ScaleEpsilon = 1e-8

// ScalerParams holds the per-feature standardization parameters
// exported by the trainer: out[i] = (in[i] - Mean[i]) / Scale[i].
// Loaded once during asset loading and treated as immutable after.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadScalerParams reads scaler params from a JSON file.
func LoadScalerParams(path string) (*ScalerParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scaler params: %w", err)
	}
	return ParseScalerParams(data)
}

// ParseScalerParams decodes and validates scaler JSON.
func ParseScalerParams(data []byte) (*ScalerParams, error) {
	var p ScalerParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding scaler params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that both arrays span exactly FeatureCount entries.
func (p *ScalerParams) Validate() error {
	if len(p.Mean) != FeatureCount {
		return &DimensionMismatchError{Got: len(p.Mean), Want: FeatureCount}
	}
	if len(p.Scale) != FeatureCount {
		return &DimensionMismatchError{Got: len(p.Scale), Want: FeatureCount}
	}
	return nil
}

// Transform standardizes a feature vector. Scale entries below
// ScaleEpsilon are clamped so degenerate features never produce Inf or
// NaN. A nil receiver reports MissingScalerError.
func (p *ScalerParams) Transform(fv FeatureVector) (FeatureVector, error) {
	var out FeatureVector
	if p == nil {
		return out, &MissingScalerError{}
	}
	if err := p.Validate(); err != nil {
		return out, err
	}
	for i := 0; i < FeatureCount; i++ {
		scale := p.Scale[i]
		if scale < ScaleEpsilon {
			scale = ScaleEpsilon
		}
		out[i] = (fv[i] - p.Mean[i]) / scale
	}
	return out, nil
}
