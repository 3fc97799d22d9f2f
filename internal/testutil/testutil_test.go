package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFixtureRoundTrip(t *testing.T) {
	path := WriteFixture(t, "frames.ndjson", []byte("{\"x\":0.1}\n"))

	data := ReadFile(t, path)
	if string(data) != "{\"x\":0.1}\n" {
		t.Errorf("fixture content = %q", data)
	}
}

func TestWriteFixtureCreatesSubdirs(t *testing.T) {
	path := WriteFixture(t, filepath.Join("model", "labels.json"), []byte("[]"))

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("fixture not created: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "model" {
		t.Errorf("fixture dir = %s, want model", filepath.Dir(path))
	}
}

func TestAssertHelpersPassingPaths(t *testing.T) {
	// Only the passing paths are testable here; the failing paths call
	// t.Fatal and would stop this test.
	AssertNoError(t, nil)
	AssertError(t, os.ErrNotExist)
	AssertStatusCode(t, 200, 200)
}
