package monitor

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/stride-data/activity.report/internal/har"
)

// Shared by the timeline scatter visual map; low confidence reads
// dark, high confidence bright.
var confidenceRamp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleTimelineChart renders the activity timeline (HTML) using go-echarts:
// one point per classified window, level on Y, confidence as color.
// Query params:
//   - session (optional; defaults to the most recent windows across sessions)
//   - limit (optional; default 500) to reduce payload size
func (c *Charts) handleTimelineChart(w http.ResponseWriter, r *http.Request) {
	if c.db == nil {
		c.writeJSONError(w, http.StatusInternalServerError, "no database configured for chart data")
		return
	}

	session := r.URL.Query().Get("session")
	limit := chartLimit(r, 500, 5000)

	preds, err := c.fetchPredictions(session, limit)
	if err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get predictions: %v", err))
		return
	}
	if len(preds) == 0 {
		c.writeJSONError(w, http.StatusNotFound, "no predictions to chart")
		return
	}

	data := PrepareTimelineData(preds)

	points := make([]opts.ScatterData, 0, len(data.Points))
	for _, p := range data.Points {
		points = append(points, opts.ScatterData{Value: []interface{}{p.Seconds, p.Level, p.Confidence}})
	}

	// Pad the time axis so the last windows are not on the edge
	padX := data.SpanSeconds * 1.05
	if padX == 0 {
		padX = 1.0
	}

	scope := "recent"
	if session != "" {
		scope = session
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Activity Timeline", Theme: "dark", Width: "1400px", Height: "640px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Activity Timeline", Subtitle: fmt.Sprintf("scope=%s windows=%d span=%.0fs", scope, len(points), data.SpanSeconds)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: padX, Name: "Seconds", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: har.LevelCount + 1, Name: "Level", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: confidenceRamp},
		}),
	)

	scatter.AddSeries("windows", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleLevelChart renders a bar chart of windows per intensity level.
// Query params:
//   - session (optional; defaults to the most recent windows across sessions)
//   - limit (optional; default 2000)
func (c *Charts) handleLevelChart(w http.ResponseWriter, r *http.Request) {
	if c.db == nil {
		c.writeJSONError(w, http.StatusInternalServerError, "no database configured for chart data")
		return
	}

	session := r.URL.Query().Get("session")
	limit := chartLimit(r, 2000, 10000)

	preds, err := c.fetchPredictions(session, limit)
	if err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get predictions: %v", err))
		return
	}
	if len(preds) == 0 {
		c.writeJSONError(w, http.StatusNotFound, "no predictions to chart")
		return
	}

	dist := PrepareLevelDistribution(preds)

	x := make([]string, 0, har.LevelCount)
	y := make([]opts.BarData, 0, har.LevelCount)
	for level := 1; level <= har.LevelCount; level++ {
		x = append(x, strconv.Itoa(level))
		y = append(y, opts.BarData{Value: dist.Counts[level]})
	}

	subtitle := fmt.Sprintf("windows=%d", dist.Total)
	if session != "" {
		if summary, err := c.db.SummarizeSession(session); err == nil && summary.Total > 0 {
			subtitle = fmt.Sprintf("session=%s dominant=%s mean level=%.1f", session, summary.DominantLabel, summary.MeanLevel)
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Level Distribution", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Level Distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Level"}),
	)
	bar.SetXAxis(x).
		AddSeries("windows", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleConfidenceChart renders the confidence line. With a session it
// charts the time-bucketed session rollup; without one it charts the
// most recent windows directly.
// Query params:
//   - session (optional)
//   - bucket_ms (optional; default 10000; only applies with a session)
//   - limit (optional; default 500; only applies without a session)
func (c *Charts) handleConfidenceChart(w http.ResponseWriter, r *http.Request) {
	if c.db == nil {
		c.writeJSONError(w, http.StatusInternalServerError, "no database configured for chart data")
		return
	}

	session := r.URL.Query().Get("session")

	var points []ConfidencePoint
	var subtitle string

	if session != "" {
		bucketMS := int64(10_000)
		if v := r.URL.Query().Get("bucket_ms"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
				bucketMS = parsed
			}
		}

		buckets, err := c.db.LevelSeries(session, bucketMS)
		if err != nil {
			c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get level series: %v", err))
			return
		}
		points = PrepareConfidenceSeries(buckets)
		subtitle = fmt.Sprintf("session=%s buckets=%d bucket=%dms", session, len(points), bucketMS)
	} else {
		limit := chartLimit(r, 500, 5000)
		preds, err := c.fetchPredictions("", limit)
		if err != nil {
			c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get predictions: %v", err))
			return
		}
		points = PreparePredictionConfidence(preds)
		subtitle = fmt.Sprintf("recent windows=%d", len(points))
	}

	if len(points) == 0 {
		c.writeJSONError(w, http.StatusNotFound, "no predictions to chart")
		return
	}

	x := make([]string, 0, len(points))
	y := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, p.TimeLabel)
		y = append(y, opts.LineData{Value: p.MeanConfidence})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Prediction Confidence", Theme: "dark", Width: "1400px", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Prediction Confidence", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "Confidence", NameLocation: "middle", NameGap: 30}),
	)

	line.SetXAxis(x).
		AddSeries("confidence", y,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		c.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDashboard renders a simple dashboard with iframes to the chart pages.
func (c *Charts) handleDashboard(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	safeSession := html.EscapeString(session)
	qs := ""
	if session != "" {
		qs = "?session=" + url.QueryEscape(session)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(dashboardHTML, safeSession, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Activity Charts %[1]s</title>
<style>
  body { background: #111; color: #eee; font-family: sans-serif; margin: 0; padding: 1rem; }
  h1 { font-size: 1.2rem; font-weight: normal; }
  .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
  iframe { width: 100%%; height: 560px; border: 1px solid #333; background: #1e1e1e; }
  .wide { grid-column: 1 / -1; }
</style>
</head>
<body>
<h1>Activity charts %[1]s</h1>
<div class="grid">
  <iframe class="wide" src="/charts/timeline%[2]s"></iframe>
  <iframe src="/charts/levels%[2]s"></iframe>
  <iframe src="/charts/confidence%[2]s"></iframe>
</div>
</body>
</html>
`
