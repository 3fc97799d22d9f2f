package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/stride-data/activity.report/internal/har"
)

// record is one labelled accelerometer reading from the training CSV.
type record struct {
	User     string
	Activity string
	Sample   har.Sample
}

// labeledWindow pairs the feature vector of one window with its class.
type labeledWindow struct {
	Features har.FeatureVector
	Label    string
}

// parseRecords reads labelled accelerometer CSV in the common phone
// study layout: user,activity,timestamp,x,y,z with records terminated
// by ';'. Some exports pack several records on one physical line and
// some leave partial trailing records, so chunks that do not parse are
// skipped and counted rather than failing the run.
func parseRecords(r io.Reader) ([]record, int) {
	var records []record
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		for _, chunk := range strings.Split(scanner.Text(), ";") {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			rec, err := parseRecord(chunk)
			if err != nil {
				skipped++
				continue
			}
			records = append(records, rec)
		}
	}
	return records, skipped
}

func parseRecord(chunk string) (record, error) {
	fields := strings.Split(chunk, ",")
	if len(fields) < 6 {
		return record{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	user := strings.TrimSpace(fields[0])
	activity := strings.TrimSpace(fields[1])
	if activity == "" {
		return record{}, fmt.Errorf("empty activity label")
	}

	var axes [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[3+i]), 64)
		if err != nil {
			return record{}, fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i] = v
	}

	return record{
		User:     user,
		Activity: activity,
		Sample:   har.Sample{X: axes[0], Y: axes[1], Z: axes[2]},
	}, nil
}

// cutWindows slices the record stream into fixed-size windows and
// reduces each to its feature vector. Windows never span a change of
// user or activity: the recordings are contiguous blocks per subject,
// and a window straddling two activities would carry a lie for a label.
func cutWindows(records []record, size, stride int) ([]labeledWindow, error) {
	if size < 1 {
		return nil, fmt.Errorf("window size must be at least 1, got %d", size)
	}
	if stride < 1 {
		return nil, fmt.Errorf("stride must be at least 1, got %d", stride)
	}

	var windows []labeledWindow
	appendRun := func(run []record) error {
		for start := 0; start+size <= len(run); start += stride {
			samples := make([]har.Sample, size)
			for i, rec := range run[start : start+size] {
				samples[i] = rec.Sample
			}
			fv, err := har.ExtractFeatures(samples)
			if err != nil {
				return err
			}
			windows = append(windows, labeledWindow{Features: fv, Label: run[start].Activity})
		}
		return nil
	}

	runStart := 0
	for i := 1; i <= len(records); i++ {
		if i == len(records) ||
			records[i].User != records[runStart].User ||
			records[i].Activity != records[runStart].Activity {
			if err := appendRun(records[runStart:i]); err != nil {
				return nil, err
			}
			runStart = i
		}
	}
	return windows, nil
}

// classList returns the distinct labels in sorted order. Sorting makes
// the label index assignment reproducible across runs, which keeps a
// retrained model compatible with an already-deployed labels.json when
// the label vocabulary has not changed.
func classList(windows []labeledWindow) []string {
	seen := map[string]bool{}
	var labels []string
	for _, w := range windows {
		if !seen[w.Label] {
			seen[w.Label] = true
			labels = append(labels, w.Label)
		}
	}
	sort.Strings(labels)
	return labels
}
