package har

import (
	"encoding/json"
	"fmt"
	"os"
)

// UnknownLabel is reported when the classifier picks an index outside
// the loaded label set.
const UnknownLabel = "unknown"

// LabelSet is the ordered list of class names. Index i names the class
// behind position i of every classifier output distribution.
type LabelSet []string

// LoadLabelSet reads a JSON string array of class names.
func LoadLabelSet(path string) (LabelSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading label set: %w", err)
	}
	return ParseLabelSet(data)
}

// ParseLabelSet decodes and validates label JSON.
func ParseLabelSet(data []byte) (LabelSet, error) {
	var ls LabelSet
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, fmt.Errorf("decoding label set: %w", err)
	}
	if len(ls) == 0 {
		return nil, fmt.Errorf("label set is empty")
	}
	return ls, nil
}

// Label returns the name at index i, or UnknownLabel when i falls
// outside the set.
func (ls LabelSet) Label(i int) string {
	if i < 0 || i >= len(ls) {
		return UnknownLabel
	}
	return ls[i]
}
