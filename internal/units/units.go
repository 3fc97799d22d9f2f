// Package units provides shared constants and validation for acceleration units
package units

// Unit constants
const (
	MPS2 = "mps2"
	G    = "g"
	MG   = "mg"
)

// StandardGravity is one g expressed in m/s^2.
const StandardGravity = 9.80665

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS2, G, MG}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps2, g, mg"
}

// ToMPS2 converts an acceleration from the given source units to m/s^2.
// The pipeline, trainer, and database all operate on m/s^2.
func ToMPS2(value float64, sourceUnits string) float64 {
	switch sourceUnits {
	case MPS2:
		return value
	case G:
		return value * StandardGravity
	case MG:
		return value * StandardGravity / 1000
	default:
		return value
	}
}

// FromMPS2 converts an acceleration in m/s^2 to the target units for display
func FromMPS2(value float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS2:
		return value
	case G:
		return value / StandardGravity
	case MG:
		return value / StandardGravity * 1000
	default:
		return value
	}
}
