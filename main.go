package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stride-data/activity.report/internal/api"
	"github.com/stride-data/activity.report/internal/capture"
	"github.com/stride-data/activity.report/internal/config"
	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/discovery"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/live"
	"github.com/stride-data/activity.report/internal/monitor"
	"github.com/stride-data/activity.report/internal/mqttio"
	"github.com/stride-data/activity.report/internal/redispub"
	"github.com/stride-data/activity.report/internal/security"
	"github.com/stride-data/activity.report/internal/sensormux"
	"github.com/stride-data/activity.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode (mock console pod, embedded demo model)")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "activity_data.db", "Path to the SQLite database file")
	configFile  = flag.String("config", "", "Tuning config JSON (built-in defaults when empty)")
	assetDir    = flag.String("assets", "", "Model asset directory (overrides the tuning config)")
	consolePort = flag.String("console-port", "", "Serial device for the IMU console (optional)")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker URL for publishing results (optional)")
	redisAddr   = flag.String("redis-addr", "", "Redis address for the latest-result cache (optional)")
	noDiscovery = flag.Bool("no-discovery", false, "Disable zeroconf announcement on the LAN")
	logInterval = flag.Int("log-interval", 10, "Pipeline statistics logging interval in seconds")
	debugLog    = flag.String("debug-log", "", "File receiving the pipeline diag and trace streams (off when empty)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// devConsoleLine is the frame the mock console pod replays at 50 Hz in
// dev mode: a phone lying flat, gravity on z.
const devConsoleLine = "0.12,-0.34,9.81\n"

// handleConsoleLine routes one line from the console pod. Info frames
// update the device state map; sample frames stream to the live hub so
// a wired pod can be scoped from a browser without starting a session.
// The classifier only sees samples routed through the capture
// controller.
func handleConsoleLine(hub *live.Hub, payload string) error {
	switch sensormux.ClassifyPayload(payload) {
	case sensormux.EventTypeDeviceInfo:
		return sensormux.HandleDeviceInfo(payload)
	case sensormux.EventTypeSampleFrame, sensormux.EventTypeSampleBatch:
		samples, err := sensormux.ParseSampleLine(payload)
		if err != nil {
			return err
		}
		if hub != nil {
			for _, s := range samples {
				hub.PublishSample(s)
			}
		}
		return nil
	default:
		return fmt.Errorf("unrecognised console payload %q", payload)
	}
}

// newSourceBuilder wires capture sources. The serial and sim kinds come
// from the capture defaults; the MQTT kind subscribes through mqttio,
// which capture itself does not link.
func newSourceBuilder(rateHz int) capture.SourceBuilder {
	base := capture.DefaultSourceBuilder(rateHz)
	return func(cfg db.SourceConfig) (capture.Source, error) {
		if cfg.Kind == db.SourceKindMQTT {
			return mqttio.NewSource(cfg), nil
		}
		return base(cfg)
	}
}

// formatStatsLine renders one statistics interval from two pipeline
// counter snapshots. Returns "" when the interval saw no traffic.
func formatStatsLine(prev, cur har.Stats, elapsed time.Duration) string {
	if elapsed <= 0 {
		return ""
	}

	samples := cur.SamplesIn - prev.SamplesIn
	inferences := cur.Inferences - prev.Inferences
	throttled := cur.Throttled - prev.Throttled
	failures := cur.Failures - prev.Failures
	if samples == 0 && inferences == 0 && failures == 0 {
		return ""
	}

	msg := fmt.Sprintf("Pipeline stats (/sec): %.1f samples, %.1f inferences, state=%s window=%d/%d",
		float64(samples)/elapsed.Seconds(), float64(inferences)/elapsed.Seconds(),
		cur.State, cur.WindowLen, cur.WindowSize)
	if throttled > 0 {
		msg += fmt.Sprintf(", %d throttled", throttled)
	}
	if failures > 0 {
		msg += fmt.Sprintf(", %d failed", failures)
	}
	return msg
}

// listenPort extracts the TCP port from a listen address such as
// ":8080" or "0.0.0.0:8080". Discovery announces this port on the LAN.
func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("no port in listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("no port in listen address %q: %w", addr, err)
	}
	return port, nil
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// the migrate subcommand manages the schema itself, so it runs
	// before NewDB gets a chance to apply pending migrations
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	// the ops stream always reaches stderr; diag and trace are a
	// firehose and only flow when routed to a file
	if *debugLog != "" {
		f, err := os.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open debug log %s: %v", *debugLog, err)
		}
		defer f.Close()
		har.SetLogWriters(os.Stderr, f, f)
	} else {
		har.SetLogWriters(os.Stderr, nil, nil)
	}

	tuning := config.MustLoadDefaultConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	var loader har.AssetLoader
	if *devMode {
		loader = har.DemoAssetLoader{}
		log.Print("Dev mode: using the embedded demo model")
	} else {
		dir := tuning.GetAssetDir()
		if *assetDir != "" {
			dir = *assetDir
		}
		if err := security.ValidateAssetDir(dir); err != nil {
			log.Fatalf("Asset directory rejected: %v", err)
		}
		loader = har.FileAssetLoader{Dir: dir}
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var sensor sensormux.SensorMuxInterface
	switch {
	case *devMode:
		sensor = sensormux.NewMockSensorMux([]byte(devConsoleLine))
	case *consolePort != "":
		sensor, err = sensormux.NewRealSensorMux(*consolePort, sensormux.PortOptions{})
		if err != nil {
			log.Fatalf("Failed to open console port %s: %v", *consolePort, err)
		}
	default:
		sensor = sensormux.NewDisabledSensorMux()
	}
	defer sensor.Close()

	hub := live.NewHub()
	recorder := db.NewRecorder(database, nil)
	sinks := har.MultiSink{hub, recorder}

	if *mqttBroker != "" {
		pub, err := mqttio.NewPublisher(*mqttBroker, tuning.GetMQTTTopicPrefix())
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// redispub runs offline when the address is empty or unreachable,
	// so it is always part of the sink chain
	redisPub := redispub.New(redispub.Config{
		Addr:      *redisAddr,
		Prefix:    tuning.GetRedisKeyPrefix(),
		ResultTTL: tuning.GetRedisResultTTL(),
		RingSize:  tuning.GetResultHistoryLimit(),
	})
	defer redisPub.Close()
	sinks = append(sinks, redisPub)

	pipeline := har.NewPipeline(har.PipelineConfig{
		WindowSize:        tuning.GetWindowSize(),
		InferenceInterval: tuning.GetInferenceInterval(),
		NotReadyInterval:  tuning.GetNotReadyInterval(),
		Sink:              sinks,
	})
	if err := pipeline.LoadAssets(context.Background(), loader); err != nil {
		log.Printf("Model assets not loaded: %v (POST /api/assets/reload to retry)", err)
	}

	controller := capture.NewController(capture.Config{
		Pipeline:     pipeline,
		DB:           database,
		Recorder:     recorder,
		Sink:         sinks,
		BuildSource:  newSourceBuilder(tuning.GetSampleRateHz()),
		SampleRateHz: tuning.GetSampleRateHz(),
		RecordRaw:    tuning.GetRecordRaw(),
		RawBatchSize: tuning.GetRawBatchSize(),
		SampleSink:   hub.PublishSample,
		SampleEvery:  tuning.GetLiveSampleEvery(),
	})

	server := api.NewServer(api.Config{
		DB:       database,
		Pipeline: pipeline,
		Capture:  controller,
		Hub:      hub,
		Sensor:   sensor,
		Loader:   loader,
		Tuning:   tuning,
	})

	if !*noDiscovery {
		if port, err := listenPort(*listen); err != nil {
			log.Printf("Discovery disabled: %v", err)
		} else {
			disco := discovery.NewService(port)
			if err := disco.Start(); err != nil {
				log.Printf("Discovery registration failed: %v", err)
			}
			defer disco.Stop()
		}
	}

	// Create a wait group for the live hub, console, stats, and HTTP
	// server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the live hub until shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		go hub.Run()
		<-ctx.Done()
		hub.Shutdown()
		log.Print("live hub stopped")
	}()

	// run the monitor routine to manage IO on the console port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensor.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor console port: %v", err)
		}
		log.Print("console monitor terminated")
	}()

	// subscribe to console pod lines and route them
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := sensor.Subscribe()
		defer sensor.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := handleConsoleLine(hub, payload); err != nil {
					log.Printf("console line dropped: %v", err)
				}
			case <-ctx.Done():
				log.Print("console subscriber terminated")
				return
			}
		}
	}()

	// periodic pipeline statistics logging
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()

		prev := pipeline.Stats()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := pipeline.Stats()
				now := time.Now()
				if line := formatStatsLine(prev, cur, now.Sub(last)); line != "" {
					log.Print(line)
				}
				prev = cur
				last = now
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (SQL console, backup,
		// console pod tail)
		database.AttachAdminRoutes(mux)
		sensor.AttachAdminRoutes(mux)

		// server-side chart pages for operators
		monitor.NewCharts(database).AttachRoutes(mux)

		// the API mux registers its own /api, /ws and /ws/ingest paths;
		// discovery announces those paths in its TXT records
		apiMux := server.ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/ws", apiMux)
		mux.Handle("/ws/ingest", apiMux)

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head><title>Activity Report</title></head>
<body>
	<h1>Activity Report</h1>
	<p>Version %s, listening on %s</p>
	<ul>
		<li><a href="/api/status">Daemon status</a></li>
		<li><a href="/charts">Charts dashboard</a></li>
		<li><a href="/debug/">Admin debug surface</a></li>
	</ul>
</body>
</html>`, version.String(), *listen)
		})

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish, then end any running session
	wg.Wait()
	if controller.Running() {
		if _, err := controller.Stop(); err != nil {
			log.Printf("failed to stop capture session: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
