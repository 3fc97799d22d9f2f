package har

import "math"

// FeatureCount is the fixed width of a FeatureVector.
const FeatureCount = 7

// Feature indices within a FeatureVector. The order is part of the
// model contract: scaler params and trained weights are aligned to it.
const (
	FeatMeanX = iota
	FeatMeanY
	FeatMeanZ
	FeatStdX
	FeatStdY
	FeatStdZ
	FeatRMS
)

// FeatureVector holds [mean_x, mean_y, mean_z, std_x, std_y, std_z, rms]
// computed over one window snapshot.
type FeatureVector [FeatureCount]float64

// ExtractFeatures computes the 7-feature vector for a window snapshot.
// Standard deviations are population deviations (divide by n, not n-1).
// The rms term is the mean of the per-sample 3-D magnitudes rather than
// a true root-mean-square; the shipped scaler and weights are fitted to
// this exact statistic, and the trainer uses the same code path.
func ExtractFeatures(samples []Sample) (FeatureVector, error) {
	var fv FeatureVector
	n := len(samples)
	if n == 0 {
		return fv, &InvalidWindowError{Len: 0}
	}

	var sumX, sumY, sumZ, sumMag float64
	for _, s := range samples {
		sumX += s.X
		sumY += s.Y
		sumZ += s.Z
		sumMag += s.Magnitude()
	}
	fn := float64(n)
	meanX := sumX / fn
	meanY := sumY / fn
	meanZ := sumZ / fn

	var varX, varY, varZ float64
	for _, s := range samples {
		dx := s.X - meanX
		dy := s.Y - meanY
		dz := s.Z - meanZ
		varX += dx * dx
		varY += dy * dy
		varZ += dz * dz
	}

	fv[FeatMeanX] = meanX
	fv[FeatMeanY] = meanY
	fv[FeatMeanZ] = meanZ
	fv[FeatStdX] = math.Sqrt(varX / fn)
	fv[FeatStdY] = math.Sqrt(varY / fn)
	fv[FeatStdZ] = math.Sqrt(varZ / fn)
	fv[FeatRMS] = sumMag / fn
	return fv, nil
}
