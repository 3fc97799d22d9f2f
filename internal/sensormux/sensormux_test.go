package sensormux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestSensorPort implements SensorPorter for testing SensorMux operations
type TestSensorPort struct {
	readData    []byte
	readIndex   int
	writtenData bytes.Buffer
	writeErr    error
	closeErr    error
	closed      bool
	mu          sync.Mutex
}

func NewTestSensorPort(data string) *TestSensorPort {
	return &TestSensorPort{
		readData: []byte(data),
	}
}

func (p *TestSensorPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		// Block until closed to simulate waiting for more data
		time.Sleep(10 * time.Millisecond)
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *TestSensorPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.writtenData.Write(data)
}

func (p *TestSensorPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *TestSensorPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *TestSensorPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.String()
}

// TestNewSensorMux tests creation of a new SensorMux
func TestNewSensorMux(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	if mux == nil {
		t.Fatal("NewSensorMux returned nil")
	}
	if mux.port != port {
		t.Error("SensorMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SensorMux subscribers map not initialized")
	}
}

// TestSensorMux_Subscribe tests subscribing to the sensor mux
func TestSensorMux_Subscribe(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" || id2 == "" {
		t.Error("Subscription returned empty ID")
	}
	if id1 == id2 {
		t.Error("Subscription IDs should be unique")
	}
	if ch1 == nil || ch2 == nil {
		t.Error("Subscription returned nil channel")
	}

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 2 {
		t.Errorf("Expected 2 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

// TestSensorMux_Unsubscribe tests unsubscribing from the sensor mux
func TestSensorMux_Unsubscribe(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	id, ch := mux.Subscribe()

	// Start a goroutine to detect channel closure
	done := make(chan bool)
	go func() {
		_, ok := <-ch
		if ok {
			t.Error("Expected channel to be closed")
		}
		done <- true
	}()

	// Give goroutine time to start
	time.Sleep(10 * time.Millisecond)

	mux.Unsubscribe(id)

	select {
	case <-done:
		// Success
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel closure")
	}

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

// TestSensorMux_Unsubscribe_NonExistent tests unsubscribing with invalid ID
func TestSensorMux_Unsubscribe_NonExistent(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	// Should not panic
	mux.Unsubscribe("non-existent-id")
}

// TestSensorMux_SendCommand tests sending commands to the sensor port
func TestSensorMux_SendCommand(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	tests := []struct {
		name        string
		command     string
		expectedEnd string
	}{
		{"command without newline", "OJ", "OJ\n"},
		{"command with newline", "SV\n", "SV\n"},
		{"query command", "??", "??\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mux.SendCommand(tt.command)
			if err != nil {
				t.Errorf("SendCommand returned error: %v", err)
			}
		})
	}

	// Verify all commands were written
	written := port.WrittenData()
	if !strings.Contains(written, "OJ\n") {
		t.Error("Expected OJ command to be written")
	}
	if !strings.Contains(written, "SV\n") {
		t.Error("Expected SV command to be written")
	}
}

// TestSensorMux_SendCommand_WriteError tests error handling in SendCommand
func TestSensorMux_SendCommand_WriteError(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	port.SetWriteError(errors.New("write failed"))

	err := mux.SendCommand("OJ")
	if err == nil {
		t.Error("Expected error when write fails")
	}
}

// TestSensorMux_SendCommand_PartialWrite tests handling of partial writes
func TestSensorMux_SendCommand_PartialWrite(t *testing.T) {
	port := &PartialWritePort{maxWrite: 1}
	mux := NewSensorMux(port)

	err := mux.SendCommand("OJ")
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Expected ErrWriteFailed for partial write, got %v", err)
	}
}

// PartialWritePort is a test port that only writes a limited number of bytes
type PartialWritePort struct {
	maxWrite int
	written  []byte
	closed   bool
}

func (p *PartialWritePort) Read(buf []byte) (int, error) {
	return 0, io.EOF
}

func (p *PartialWritePort) Write(data []byte) (int, error) {
	if p.maxWrite > 0 && len(data) > p.maxWrite {
		p.written = append(p.written, data[:p.maxWrite]...)
		return p.maxWrite, nil
	}
	p.written = append(p.written, data...)
	return len(data), nil
}

func (p *PartialWritePort) Close() error {
	p.closed = true
	return nil
}

// TestSensorMux_Initialize tests the Initialize method
func TestSensorMux_Initialize(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	err := mux.Initialize()
	if err != nil {
		t.Errorf("Initialize returned error: %v", err)
	}

	// Verify commands were sent
	written := port.WrittenData()
	expectedCommands := []string{"C=", "AX", "OJ", "Ob", "Ot", "UM", "SV", "G4", "F-"}
	for _, cmd := range expectedCommands {
		if !strings.Contains(written, cmd) {
			t.Errorf("Expected command %s to be written during initialization", cmd)
		}
	}
}

// TestSensorMux_Initialize_WriteError tests Initialize with write failure
func TestSensorMux_Initialize_WriteError(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	port.SetWriteError(errors.New("write failed"))

	err := mux.Initialize()
	if err == nil {
		t.Error("Expected error when write fails during initialization")
	}
}

// TestSensorMux_Close tests closing the sensor mux
func TestSensorMux_Close(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	// Start goroutines to detect channel closure
	done1 := make(chan bool)
	done2 := make(chan bool)

	go func() {
		_, ok := <-ch1
		if ok {
			t.Error("Expected channel 1 to be closed")
		}
		done1 <- true
	}()

	go func() {
		_, ok := <-ch2
		if ok {
			t.Error("Expected channel 2 to be closed")
		}
		done2 <- true
	}()

	// Give goroutines time to start
	time.Sleep(10 * time.Millisecond)

	err := mux.Close()
	if err != nil {
		t.Errorf("Close returned error: %v", err)
	}

	select {
	case <-done1:
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel 1 closure")
	}

	select {
	case <-done2:
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel 2 closure")
	}

	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()

	mux.closingMu.Lock()
	if !mux.closing {
		t.Error("Expected closing flag to be true after Close")
	}
	mux.closingMu.Unlock()

	// Unsubscribing after close should be safe
	mux.Unsubscribe(id1)
}

// TestSensorMux_Monitor tests the Monitor method delivering frames
func TestSensorMux_Monitor(t *testing.T) {
	port := NewTestSensorPort(`{"x":0.1,"y":0.2,"z":9.8}` + "\n" + `{"x":0.3,"y":0.1,"z":9.7}` + "\n")
	mux := NewSensorMux(port)

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Start monitoring in background
	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	// Read lines from subscriber channel
	received := make([]string, 0)
	timeout := time.After(200 * time.Millisecond)

loop:
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				break loop
			}
			received = append(received, line)
		case <-timeout:
			break loop
		}
	}

	for _, line := range received {
		if ClassifyPayload(line) != EventTypeSampleFrame {
			t.Errorf("Expected sample frame, got %q", line)
		}
	}

	// Wait for monitor to complete
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Logf("Monitor returned: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Log("Monitor still running")
	}
}

// TestSensorMux_Monitor_ScanError tests Monitor with scanner error
func TestSensorMux_Monitor_ScanError(t *testing.T) {
	port := &ErrorReadPort{errAfter: 2}
	mux := NewSensorMux(port)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := mux.Monitor(ctx)
	// Should get either the read error or context timeout
	if err != nil {
		t.Logf("Monitor returned error (expected): %v", err)
	}
}

// TestSensorMux_Monitor_CloseDuringRead tests closing while Monitor is reading
func TestSensorMux_Monitor_CloseDuringRead(t *testing.T) {
	port := NewTestSensorPort("0.1,0.2,9.8\n0.3,0.1,9.7\n0.2,0.2,9.8\n0.1,0.3,9.9\n")
	mux := NewSensorMux(port)

	_, ch := mux.Subscribe()

	ctx := context.Background()

	// Start monitoring in background
	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	// Read a line to ensure monitor is running
	select {
	case <-ch:
		// Got a line
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for first line")
	}

	// Now close the mux
	if err := mux.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Monitor should exit
	select {
	case err := <-done:
		if err != nil {
			t.Logf("Monitor returned: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("Monitor did not exit after Close")
	}
}

// ErrorReadPort simulates a port that returns an error after N reads
type ErrorReadPort struct {
	readCount int
	errAfter  int
	closed    bool
}

func (p *ErrorReadPort) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, io.EOF
	}
	p.readCount++
	if p.readCount > p.errAfter {
		return 0, errors.New("simulated read error")
	}
	// Return a newline to simulate a line
	if len(buf) > 0 {
		buf[0] = '\n'
		return 1, nil
	}
	return 0, nil
}

func (p *ErrorReadPort) Write(data []byte) (int, error) {
	return len(data), nil
}

func (p *ErrorReadPort) Close() error {
	p.closed = true
	return nil
}

// TestSensorMux_AttachAdminRoutes tests the admin routes registration
func TestSensorMux_AttachAdminRoutes(t *testing.T) {
	port := NewTestSensorPort("")
	mux := NewSensorMux(port)

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	// Debug routes are protected by tailscale auth, so they return 403 when
	// not authorized. We test that the routes are registered and respond.
	routes := []struct {
		name   string
		method string
		path   string
	}{
		{"send-command", http.MethodGet, "/debug/send-command"},
		{"send-command-api", http.MethodPost, "/debug/send-command-api"},
		{"tail", http.MethodGet, "/debug/tail"},
		{"tail.js", http.MethodGet, "/debug/tail.js"},
	}
	for _, rt := range routes {
		t.Run(rt.name+"_registered", func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)

			if w.Code == http.StatusNotFound {
				t.Errorf("Route %s should be registered, got 404", rt.path)
			}
		})
	}
}

// TestRandomID tests the randomID helper function
func TestRandomID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := randomID()
		if len(id) != 16 { // 8 bytes hex encoded = 16 chars
			t.Errorf("Expected ID length 16, got %d", len(id))
		}
		if ids[id] {
			t.Errorf("Duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}
