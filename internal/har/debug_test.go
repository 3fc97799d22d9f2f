package har

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWritersSelective(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	if opsLogger == nil {
		t.Fatal("opsLogger should be non-nil after SetLogWriters with a writer")
	}
	if diagLogger != nil || traceLogger != nil {
		t.Fatal("streams passed nil writers should stay disabled")
	}
}

func TestSetLogWritersDisableAll(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(&buf, &buf, &buf)
	SetLogWriters(nil, nil, nil)

	if opsLogger != nil || diagLogger != nil || traceLogger != nil {
		t.Fatal("all loggers should be nil after SetLogWriters(nil, nil, nil)")
	}
}

func TestStreamsRouteToTheirWriters(t *testing.T) {
	var ops, diag, trace bytes.Buffer
	SetLogWriters(&ops, &diag, &trace)
	defer SetLogWriters(nil, nil, nil)

	opsf("ops %d", 1)
	diagf("diag %d", 2)
	tracef("trace %d", 3)

	if got := ops.String(); !strings.Contains(got, "ops 1") || !strings.Contains(got, "[har]") {
		t.Errorf("ops stream = %q, want 'ops 1' with '[har]' prefix", got)
	}
	if got := diag.String(); !strings.Contains(got, "diag 2") {
		t.Errorf("diag stream = %q, want 'diag 2'", got)
	}
	if got := trace.String(); !strings.Contains(got, "trace 3") {
		t.Errorf("trace stream = %q, want 'trace 3'", got)
	}
	if strings.Contains(ops.String(), "diag 2") || strings.Contains(ops.String(), "trace 3") {
		t.Error("streams should not cross into the ops writer")
	}
}

func TestStreamsSilentWhenUnset(t *testing.T) {
	SetLogWriters(nil, nil, nil)
	// Must not panic with no loggers configured.
	opsf("dropped %d", 1)
	diagf("dropped %d", 2)
	tracef("dropped %d", 3)
}
