// Command report builds an offline session report from a running
// daemon: a console digest, the interactive charts in one HTML file,
// and PNG traces for embedding elsewhere. Pointing -raw at the
// session's raw capture file adds the accelerometer axes to the PNG
// set.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/httputil"
	"github.com/stride-data/activity.report/internal/monitor"
	"github.com/stride-data/activity.report/internal/security"
)

func main() {
	api := flag.String("api", "http://localhost:8080", "Daemon base URL")
	sessionID := flag.String("session", "", "Session to report on (default: the most recent)")
	outDir := flag.String("out", "reports", "Output directory (a per-session subdirectory is created)")
	rawFile := flag.String("raw", "", "Raw capture NDJSON file for axis traces")
	limit := flag.Int("limit", 1000, "Prediction fetch cap")
	bucketMS := flag.Int64("bucket", 10_000, "Confidence rollup bucket in milliseconds")
	flag.Parse()

	client := newReportClient(httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second}), *api)

	var session *db.Session
	var err error
	if *sessionID == "" {
		session, err = client.latestSession()
	} else {
		session, err = client.session(*sessionID)
	}
	if err != nil {
		log.Fatalf("Fetching session: %v", err)
	}

	preds, err := client.predictions(session.ID, *limit)
	if err != nil {
		log.Fatalf("Fetching predictions: %v", err)
	}
	if len(preds) == 0 {
		log.Fatalf("Session %s has no predictions to report on", session.ID)
	}

	buckets, err := client.levelSeries(session.ID, *bucketMS)
	if err != nil {
		log.Printf("WARNING: No level series: %v", err)
	}

	dir := filepath.Join(*outDir, session.ID)
	if err := security.ValidateExportPath(dir); err != nil {
		log.Fatalf("Output directory: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Creating %s: %v", dir, err)
	}

	data := monitor.PrepareTimelineData(preds)
	dist := monitor.PrepareLevelDistribution(preds)
	var confidence []monitor.ConfidencePoint
	if len(buckets) > 0 {
		confidence = monitor.PrepareConfidenceSeries(buckets)
	} else {
		confidence = monitor.PreparePredictionConfidence(preds)
	}

	printSummary(os.Stdout, session, buildSummary(preds))

	written := make([]string, 0, 4)

	file, err := writeChartPage(dir, session.ID, data, dist, confidence)
	if err != nil {
		log.Fatalf("Writing chart page: %v", err)
	}
	written = append(written, file)

	if file, err = writeLevelPlot(dir, data); err != nil {
		log.Fatalf("Writing level plot: %v", err)
	}
	written = append(written, file)

	if file, err = writeConfidencePlot(dir, data); err != nil {
		log.Fatalf("Writing confidence plot: %v", err)
	}
	written = append(written, file)

	if *rawFile != "" {
		frames, skipped, err := loadRawFrames(*rawFile)
		if err != nil {
			log.Fatalf("Reading %s: %v", *rawFile, err)
		}
		if skipped > 0 {
			log.Printf("WARNING: Skipped %d unparseable lines in %s", skipped, *rawFile)
		}
		if len(frames) == 0 {
			log.Fatalf("No frames in %s", *rawFile)
		}
		if file, err = writeAxesPlot(dir, frames, data.StartUnixMS); err != nil {
			log.Fatalf("Writing axes plot: %v", err)
		}
		written = append(written, file)
	}

	log.Printf("Report written:")
	for _, f := range written {
		log.Printf("  %s", f)
	}
}
