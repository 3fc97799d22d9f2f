// Package monitor provides chart data preparation for activity visualisation.
// This file separates data shaping from eCharts rendering so the logic is
// testable without parsing generated HTML.
package monitor

import (
	"time"

	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/har"
)

// TimelinePoint is one classified window placed on the session clock.
type TimelinePoint struct {
	Seconds    float64 `json:"seconds"`
	Level      int     `json:"level"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// TimelineData is the prepared activity timeline: every window as a
// point, Seconds measured from the earliest window.
type TimelineData struct {
	Points      []TimelinePoint `json:"points"`
	SpanSeconds float64         `json:"span_seconds"`
	StartUnixMS int64           `json:"start_unix_ms"`
}

// PrepareTimelineData shapes predictions for the timeline scatter.
// Input order does not matter; the origin is the earliest record.
func PrepareTimelineData(preds []db.Prediction) *TimelineData {
	data := &TimelineData{Points: make([]TimelinePoint, 0, len(preds))}
	if len(preds) == 0 {
		return data
	}

	start := preds[0].RecordedUnixMS
	for _, p := range preds {
		if p.RecordedUnixMS < start {
			start = p.RecordedUnixMS
		}
	}
	data.StartUnixMS = start

	for _, p := range preds {
		secs := float64(p.RecordedUnixMS-start) / 1000.0
		if secs > data.SpanSeconds {
			data.SpanSeconds = secs
		}
		data.Points = append(data.Points, TimelinePoint{
			Seconds:    secs,
			Level:      p.Level,
			Confidence: p.Confidence,
			Label:      p.Label,
		})
	}

	return data
}

// LevelDistribution counts windows per intensity level. Index 0
// collects levels outside the 1..LevelCount scale, which only happens
// when foreign rows reach the predictions table.
type LevelDistribution struct {
	Counts [har.LevelCount + 1]int64 `json:"counts"`
	Total  int64                     `json:"total"`
}

// PrepareLevelDistribution tallies predictions into the level scale.
func PrepareLevelDistribution(preds []db.Prediction) *LevelDistribution {
	dist := &LevelDistribution{}
	for _, p := range preds {
		idx := p.Level
		if idx < 1 || idx > har.LevelCount {
			idx = 0
		}
		dist.Counts[idx]++
		dist.Total++
	}
	return dist
}

// ConfidencePoint is one step of the confidence line: a wall-clock
// label with the mean confidence and level behind it.
type ConfidencePoint struct {
	TimeLabel      string  `json:"time_label"`
	MeanConfidence float64 `json:"mean_confidence"`
	MeanLevel      float64 `json:"mean_level"`
	Count          int64   `json:"count"`
}

const confidenceTimeFormat = "15:04:05"

// PrepareConfidenceSeries shapes time-bucketed session rollups for the
// confidence line.
func PrepareConfidenceSeries(buckets []db.LevelBucket) []ConfidencePoint {
	points := make([]ConfidencePoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, ConfidencePoint{
			TimeLabel:      time.UnixMilli(b.BucketUnixMS).Format(confidenceTimeFormat),
			MeanConfidence: b.MeanConfidence,
			MeanLevel:      b.MeanLevel,
			Count:          b.Count,
		})
	}
	return points
}

// PreparePredictionConfidence shapes raw predictions for the
// confidence line when no session rollup applies: one point per
// window.
func PreparePredictionConfidence(preds []db.Prediction) []ConfidencePoint {
	points := make([]ConfidencePoint, 0, len(preds))
	for _, p := range preds {
		points = append(points, ConfidencePoint{
			TimeLabel:      time.UnixMilli(p.RecordedUnixMS).Format(confidenceTimeFormat),
			MeanConfidence: p.Confidence,
			MeanLevel:      float64(p.Level),
			Count:          1,
		})
	}
	return points
}
