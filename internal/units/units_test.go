package units

import (
	"math"
	"testing"
)

func TestToMPS2(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		units    string
		expected float64
	}{
		{"1 g to mps2", 1.0, G, 9.80665},
		{"2 g to mps2", 2.0, G, 19.6133},
		{"1000 mg to mps2", 1000.0, MG, 9.80665},
		{"9.81 mps2 passthrough", 9.81, MPS2, 9.81},
		{"unknown units pass through", 9.81, "unknown", 9.81},
		{"zero", 0.0, G, 0.0},
		{"negative axis reading", -1.0, G, -9.80665},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToMPS2(tt.value, tt.units)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ToMPS2(%f, %s) = %f, want %f", tt.value, tt.units, result, tt.expected)
			}
		})
	}
}

func TestFromMPS2(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		units    string
		expected float64
	}{
		{"9.80665 mps2 to g", 9.80665, G, 1.0},
		{"9.80665 mps2 to mg", 9.80665, MG, 1000.0},
		{"passthrough mps2", 3.5, MPS2, 3.5},
		{"unknown units pass through", 3.5, "unknown", 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromMPS2(tt.value, tt.units)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("FromMPS2(%f, %s) = %f, want %f", tt.value, tt.units, result, tt.expected)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, unit := range ValidUnits {
		got := FromMPS2(ToMPS2(1.25, unit), unit)
		if math.Abs(got-1.25) > 1e-9 {
			t.Errorf("round trip through %s = %f, want 1.25", unit, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mps2", MPS2, true},
		{"valid g", G, true},
		{"valid mg", MG, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "G", false},
		{"case sensitive", "Mps2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	expected := "mps2, g, mg"
	result := GetValidUnitsString()
	if result != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", result, expected)
	}
}
