// Command simsensor streams a synthetic accelerometer signal at a
// collector, standing in for a phone when exercising the pipeline end
// to end. The stream can go to stdout as NDJSON (the raw-capture file
// layout), to a running daemon's batch ingest endpoint, or to an MQTT
// frame topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stride-data/activity.report/internal/capture"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/mqttio"
)

func main() {
	// Signal shape
	rate := flag.Int("rate", 50, "Samples per second")
	duration := flag.Duration("duration", 0, "How long to stream (0 = until interrupted)")
	seed := flag.Int64("seed", 0, "Waveform seed, 0 picks one (same seed, same stream)")
	activities := flag.String("activity", "", "Comma-separated phase labels to loop (default: the full programme)")
	batch := flag.Int("batch", 25, "Samples per delivery")

	// Delivery
	sinkName := flag.String("sink", "stdout", "Delivery target: stdout, http, or mqtt")
	baseURL := flag.String("url", "http://localhost:8080", "Daemon base URL for the http sink")
	startCapture := flag.Bool("start-capture", false, "Bracket the stream with a capture session (http sink)")
	broker := flag.String("broker", "tcp://localhost:1883", "Broker URL for the mqtt sink")
	topic := flag.String("topic", mqttio.DefaultFrameTopic, "Frame topic for the mqtt sink")

	flag.Parse()

	if *rate < 1 {
		log.Fatalf("Invalid rate %d: need at least 1 Hz", *rate)
	}
	if *batch < 1 {
		*batch = 1
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	wave := capture.NewWaveform(*rate, *seed)
	if *activities != "" {
		phases, err := selectPhases(wave.Phases, *activities)
		if err != nil {
			log.Fatalf("Invalid -activity: %v", err)
		}
		wave.Phases = phases
	}

	var out sink
	var err error
	switch *sinkName {
	case "stdout":
		out = newStdoutSink(os.Stdout, *rate)
	case "http":
		out, err = newHTTPSink(*baseURL, *startCapture)
	case "mqtt":
		out, err = newMQTTSink(*broker, *topic)
	default:
		log.Fatalf("Unknown sink %q (want stdout, http, or mqtt)", *sinkName)
	}
	if err != nil {
		log.Fatalf("Opening %s sink: %v", *sinkName, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	log.Printf("Streaming at %d Hz, seed %d", *rate, *seed)
	started := time.Now()
	sent, streamErr := stream(ctx, wave, out, *rate, *batch)
	closeErr := out.Close()

	if streamErr != nil {
		log.Fatalf("Stream failed after %d samples: %v", sent, streamErr)
	}
	if closeErr != nil {
		log.Fatalf("Closing %s sink: %v", *sinkName, closeErr)
	}
	log.Printf("Done: %d samples in %v", sent, time.Since(started).Round(time.Millisecond))
}

// stream ticks samples out of the waveform until ctx ends, delivering
// them in batches and logging phase changes as the programme advances.
// Returns the number of samples delivered.
func stream(ctx context.Context, wave *capture.Waveform, out sink, rateHz, batchSize int) (int, error) {
	ticker := time.NewTicker(time.Second / time.Duration(rateHz))
	defer ticker.Stop()

	buf := make([]har.Sample, 0, batchSize)
	sent := 0
	phase := ""
	for {
		select {
		case <-ctx.Done():
			if len(buf) > 0 {
				if err := out.Send(buf); err != nil {
					return sent, err
				}
				sent += len(buf)
			}
			return sent, nil
		case <-ticker.C:
			buf = append(buf, wave.Next())
			if p := wave.Phase(); p != phase {
				phase = p
				log.Printf("Phase: %s", phase)
			}
			if len(buf) >= batchSize {
				if err := out.Send(buf); err != nil {
					return sent, err
				}
				sent += len(buf)
				buf = buf[:0]
			}
		}
	}
}

// selectPhases filters the programme down to the named labels,
// case-insensitively, preserving programme order.
func selectPhases(all []capture.WavePhase, names string) ([]capture.WavePhase, error) {
	want := make(map[string]bool)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			want[strings.ToLower(name)] = false
		}
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("no activity names in %q", names)
	}

	var phases []capture.WavePhase
	for _, p := range all {
		key := strings.ToLower(p.Label)
		if _, ok := want[key]; ok {
			want[key] = true
			phases = append(phases, p)
		}
	}
	for name, matched := range want {
		if !matched {
			known := make([]string, 0, len(all))
			for _, p := range all {
				known = append(known, p.Label)
			}
			return nil, fmt.Errorf("unknown activity %q (programme has %s)", name, strings.Join(known, ", "))
		}
	}
	return phases, nil
}
