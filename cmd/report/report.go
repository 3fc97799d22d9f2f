package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/httputil"
	"github.com/stride-data/activity.report/internal/monitor"
)

// Chart pages load the echarts bundle from this host, matching the
// daemon's own chart pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Timeline scatter visual map, low confidence dark, high bright.
var confidenceRamp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// reportClient fetches report inputs from a running daemon.
type reportClient struct {
	http httputil.Client
	base string
}

func newReportClient(c httputil.Client, baseURL string) *reportClient {
	return &reportClient{http: c, base: strings.TrimRight(baseURL, "/")}
}

func (c *reportClient) getJSON(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := httputil.DecodeJSON(resp, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// latestSession returns the most recently started capture session.
func (c *reportClient) latestSession() (*db.Session, error) {
	var sessions []db.Session
	if err := c.getJSON("/api/sessions?limit=1", &sessions); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("daemon has no recorded sessions")
	}
	return &sessions[0], nil
}

func (c *reportClient) session(id string) (*db.Session, error) {
	var s db.Session
	if err := c.getJSON("/api/sessions/"+url.PathEscape(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// predictions returns a session's windows oldest-first.
func (c *reportClient) predictions(id string, limit int) ([]db.Prediction, error) {
	var preds []db.Prediction
	path := fmt.Sprintf("/api/predictions?session=%s&limit=%d", url.QueryEscape(id), limit)
	if err := c.getJSON(path, &preds); err != nil {
		return nil, err
	}
	return preds, nil
}

func (c *reportClient) levelSeries(id string, bucketMS int64) ([]db.LevelBucket, error) {
	var buckets []db.LevelBucket
	path := fmt.Sprintf("/api/sessions/%s/levels?bucket_ms=%d", url.PathEscape(id), bucketMS)
	if err := c.getJSON(path, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

// buildSummary rolls the fetched windows up locally rather than asking
// the daemon, so the digest and the charts always describe the same
// rows even when new windows land mid-report.
func buildSummary(preds []db.Prediction) har.SessionSummary {
	results := make([]har.TimedResult, 0, len(preds))
	for _, p := range preds {
		results = append(results, har.TimedResult{
			At:     time.UnixMilli(p.RecordedUnixMS),
			Result: har.PredictionResult{Label: p.Label, Confidence: p.Confidence, Level: p.Level},
		})
	}
	return har.Summarize(results)
}

// printSummary writes the console digest.
func printSummary(w io.Writer, session *db.Session, summary har.SessionSummary) {
	fmt.Fprintf(w, "Session    %s\n", session.ID)
	fmt.Fprintf(w, "Source     %s\n", session.Source)
	if session.Notes != "" {
		fmt.Fprintf(w, "Notes      %s\n", session.Notes)
	}
	started := time.UnixMilli(session.StartedUnixMS)
	fmt.Fprintf(w, "Started    %s\n", started.Format(time.RFC3339))
	if session.EndedUnixMS != nil {
		ended := time.UnixMilli(*session.EndedUnixMS)
		fmt.Fprintf(w, "Ended      %s (%v)\n", ended.Format(time.RFC3339), ended.Sub(started).Round(time.Second))
	} else {
		fmt.Fprintf(w, "Ended      still open\n")
	}
	fmt.Fprintf(w, "Windows    %d\n", summary.Predictions)
	if summary.Predictions == 0 {
		return
	}
	fmt.Fprintf(w, "Dominant   %s (level %d)\n", summary.DominantLabel, summary.DominantLevel)
	fmt.Fprintf(w, "Confidence mean %.3f, median %.3f\n", summary.MeanConfidence, summary.MedianConfidence)

	labels := make([]string, 0, len(summary.LabelCounts))
	for label := range summary.LabelCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		count := summary.LabelCounts[label]
		pct := 100 * float64(count) / float64(summary.Predictions)
		fmt.Fprintf(w, "  %-12s %6d  %5.1f%%\n", label, count, pct)
	}
}

// rawFrame is one line of a raw capture NDJSON file.
type rawFrame struct {
	T int64 `json:"t"`
	har.Sample
}

// loadRawFrames reads a raw capture file, counting lines that do not
// parse instead of failing on them.
func loadRawFrames(path string) ([]rawFrame, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var frames []rawFrame
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var fr rawFrame
		if err := json.Unmarshal(line, &fr); err != nil {
			skipped++
			continue
		}
		frames = append(frames, fr)
	}
	return frames, skipped, scanner.Err()
}

// writeLevelPlot draws the intensity level over the session clock.
func writeLevelPlot(dir string, data *monitor.TimelineData) (string, error) {
	p := plot.New()
	p.Title.Text = "Activity Level"
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Level"
	p.Y.Min = 0
	p.Y.Max = float64(har.LevelCount + 1)

	pts := make(plotter.XYs, 0, len(data.Points))
	for _, tp := range data.Points {
		pts = append(pts, plotter.XY{X: tp.Seconds, Y: float64(tp.Level)})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Color = color.RGBA{R: 53, G: 183, B: 121, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("level", line)
	p.Legend.Top = true

	file := filepath.Join(dir, "levels.png")
	if err := p.Save(14*vg.Inch, 4*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save level plot: %w", err)
	}
	return file, nil
}

// writeConfidencePlot draws per-window confidence over the session
// clock.
func writeConfidencePlot(dir string, data *monitor.TimelineData) (string, error) {
	p := plot.New()
	p.Title.Text = "Prediction Confidence"
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Confidence"
	p.Y.Min = 0
	p.Y.Max = 1

	pts := make(plotter.XYs, 0, len(data.Points))
	for _, tp := range data.Points {
		pts = append(pts, plotter.XY{X: tp.Seconds, Y: tp.Confidence})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", err
	}
	line.Color = color.RGBA{R: 31, G: 158, B: 137, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("confidence", line)
	p.Legend.Top = true

	file := filepath.Join(dir, "confidence.png")
	if err := p.Save(14*vg.Inch, 4*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save confidence plot: %w", err)
	}
	return file, nil
}

// writeAxesPlot draws the three raw axes on the same clock as the
// prediction plots. startUnixMS anchors the origin; 0 falls back to
// the first frame.
func writeAxesPlot(dir string, frames []rawFrame, startUnixMS int64) (string, error) {
	origin := startUnixMS
	if origin == 0 && len(frames) > 0 {
		origin = frames[0].T
	}

	p := plot.New()
	p.Title.Text = "Raw Acceleration"
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "m/s²"

	axes := []struct {
		name string
		rgba color.RGBA
		pick func(har.Sample) float64
	}{
		{"x", color.RGBA{R: 214, G: 69, B: 65, A: 255}, func(s har.Sample) float64 { return s.X }},
		{"y", color.RGBA{R: 53, G: 183, B: 121, A: 255}, func(s har.Sample) float64 { return s.Y }},
		{"z", color.RGBA{R: 65, G: 105, B: 225, A: 255}, func(s har.Sample) float64 { return s.Z }},
	}
	for _, axis := range axes {
		pts := make(plotter.XYs, 0, len(frames))
		for _, fr := range frames {
			pts = append(pts, plotter.XY{X: float64(fr.T-origin) / 1000.0, Y: axis.pick(fr.Sample)})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", err
		}
		line.Color = axis.rgba
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(axis.name, line)
	}
	p.Legend.Top = true

	file := filepath.Join(dir, "axes.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save axes plot: %w", err)
	}
	return file, nil
}

// writeChartPage renders the interactive charts into one HTML file:
// the timeline scatter, the level distribution, and the confidence
// line, mirroring the daemon's /charts pages for offline reading.
func writeChartPage(dir, sessionID string, data *monitor.TimelineData, dist *monitor.LevelDistribution, confidence []monitor.ConfidencePoint) (string, error) {
	padX := data.SpanSeconds * 1.05
	if padX == 0 {
		padX = 1.0
	}

	points := make([]opts.ScatterData, 0, len(data.Points))
	for _, tp := range data.Points {
		points = append(points, opts.ScatterData{Value: []interface{}{tp.Seconds, tp.Level, tp.Confidence}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1400px", Height: "560px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Activity Timeline", Subtitle: fmt.Sprintf("session=%s windows=%d span=%.0fs", sessionID, len(points), data.SpanSeconds)}),
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

	levelX := make([]string, 0, har.LevelCount)
	levelY := make([]opts.BarData, 0, har.LevelCount)
	for level := 1; level <= har.LevelCount; level++ {
		levelX = append(levelX, fmt.Sprintf("%d", level))
		levelY = append(levelY, opts.BarData{Value: dist.Counts[level]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1400px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Level Distribution", Subtitle: fmt.Sprintf("windows=%d", dist.Total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Level"}),
	)
	bar.SetXAxis(levelX).
		AddSeries("windows", levelY,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	confX := make([]string, 0, len(confidence))
	confY := make([]opts.LineData, 0, len(confidence))
	for _, cp := range confidence {
		confX = append(confX, cp.TimeLabel)
		confY = append(confY, opts.LineData{Value: cp.MeanConfidence})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1400px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Prediction Confidence", Subtitle: fmt.Sprintf("points=%d", len(confidence))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "Confidence", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(confX).
		AddSeries("confidence", confY,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(scatter, bar, line)

	file := filepath.Join(dir, "charts.html")
	f, err := os.Create(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("render chart page: %w", err)
	}
	return file, nil
}
