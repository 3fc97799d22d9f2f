// Command train fits the softmax activity classifier from labelled
// accelerometer CSV and writes the model.json / scaler.json /
// labels.json bundle the daemon loads at startup. The feature
// extraction and standardization run through the same code paths as
// the live pipeline, so a bundle trained here scores identically at
// runtime.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/stride-data/activity.report/internal/har"
)

var (
	csvPath    = flag.String("csv", "", "Labelled accelerometer CSV (user,activity,timestamp,x,y,z records)")
	outDir     = flag.String("out", "assets", "Directory to write the model bundle into")
	windowSize = flag.Int("window", har.DefaultWindowSize, "Samples per training window")
	stride     = flag.Int("stride", 100, "Samples between window starts")
	epochs     = flag.Int("epochs", 300, "Gradient-descent epochs")
	rate       = flag.Float64("rate", 0.5, "Learning rate")
	l2         = flag.Float64("l2", 1e-4, "L2 regularisation strength")
	holdout    = flag.Float64("holdout", 0.2, "Fraction of windows held out for evaluation")
	seed       = flag.Int64("seed", 1, "Shuffle seed")
	modelName  = flag.String("model-name", "softmax-linear", "Name stamped into the model bundle")
	logEvery   = flag.Int("log-every", 50, "Epochs between loss lines (0 silences them)")
)

func main() {
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("a training CSV is required: -csv recordings.csv")
	}
	if *holdout < 0 || *holdout >= 1 {
		log.Fatalf("holdout must be in [0, 1), got %v", *holdout)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("open training CSV: %v", err)
	}
	records, skipped := parseRecords(f)
	f.Close()
	if skipped > 0 {
		log.Printf("skipped %d malformed records", skipped)
	}
	if len(records) == 0 {
		log.Fatalf("no usable records in %s", *csvPath)
	}
	log.Printf("loaded %d records from %s", len(records), *csvPath)

	windows, err := cutWindows(records, *windowSize, *stride)
	if err != nil {
		log.Fatalf("windowing failed: %v", err)
	}
	if len(windows) < 2 {
		log.Fatalf("only %d windows; need more data for window size %d", len(windows), *windowSize)
	}

	classes := classList(windows)
	if len(classes) < 2 {
		log.Fatalf("training data contains a single class %q; need at least 2", classes[0])
	}
	log.Printf("%d windows across %d classes: %v", len(windows), len(classes), classes)

	rng := rand.New(rand.NewSource(*seed))
	rng.Shuffle(len(windows), func(i, j int) {
		windows[i], windows[j] = windows[j], windows[i]
	})

	split := len(windows) - int(float64(len(windows))**holdout)
	if split < 1 {
		split = 1
	}
	train, eval := windows[:split], windows[split:]

	scaler, err := fitScaler(train)
	if err != nil {
		log.Fatalf("fitting scaler: %v", err)
	}

	trainX, trainY, err := designMatrix(train, scaler, classes)
	if err != nil {
		log.Fatalf("building training matrix: %v", err)
	}

	model, err := trainSoftmax(trainX, trainY, len(classes), trainConfig{
		Epochs:   *epochs,
		Rate:     *rate,
		L2:       *l2,
		LogEvery: *logEvery,
	}, log.Printf)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	model.Name = *modelName

	classifier, err := har.NewSoftmaxClassifier(model)
	if err != nil {
		log.Fatalf("trained model rejected: %v", err)
	}

	trainAcc, _, err := accuracy(classifier, trainX, trainY, len(classes))
	if err != nil {
		log.Fatalf("scoring training set: %v", err)
	}
	log.Printf("training accuracy: %.3f over %d windows", trainAcc, len(train))

	if len(eval) > 0 {
		evalX, evalY, err := designMatrix(eval, scaler, classes)
		if err != nil {
			log.Fatalf("building holdout matrix: %v", err)
		}
		evalAcc, recall, err := accuracy(classifier, evalX, evalY, len(classes))
		if err != nil {
			log.Fatalf("scoring holdout: %v", err)
		}
		log.Printf("holdout accuracy: %.3f over %d windows", evalAcc, len(eval))
		for i, cls := range classes {
			log.Printf("  %-12s recall %.3f, maps to level %d", cls, recall[i], har.LevelForActivity(cls))
		}
	}

	if err := writeBundle(*outDir, model, scaler, classes); err != nil {
		log.Fatalf("writing bundle: %v", err)
	}

	// Reload through the daemon's own loader so a bundle that trains
	// but will not serve fails here instead of at daemon startup.
	bundle, err := har.FileAssetLoader{Dir: *outDir}.Load(context.Background())
	if err != nil {
		log.Fatalf("bundle verification failed: %v", err)
	}
	fmt.Printf("bundle written to %s (%s, %d classes)\n", *outDir, bundle.Classifier.Model(), len(bundle.Labels))
	fmt.Printf("restart the daemon with -assets %s to serve it\n", *outDir)
}

// writeBundle writes the three bundle files the daemon's asset loader
// expects.
func writeBundle(dir string, model har.SoftmaxModel, scaler *har.ScalerParams, classes []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating bundle dir: %w", err)
	}

	write := func(name string, v interface{}) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	if err := write(har.ModelAssetName, model); err != nil {
		return err
	}
	if err := write(har.ScalerAssetName, scaler); err != nil {
		return err
	}
	return write(har.LabelsAssetName, classes)
}
