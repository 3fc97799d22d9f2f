package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/stride-data/activity.report/internal/sensormux"
)

// SourceTestRequest represents the request body for probing a serial sample source
type SourceTestRequest struct {
	PortPath       string `json:"port_path"`
	BaudRate       int    `json:"baud_rate"`
	DataBits       int    `json:"data_bits"`
	StopBits       int    `json:"stop_bits"`
	Parity         string `json:"parity"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SourceTestResponse represents the outcome of probing a serial sample source
type SourceTestResponse struct {
	Success        bool               `json:"success"`
	PortPath       string             `json:"port_path"`
	BaudRate       int                `json:"baud_rate"`
	TestDurationMS int64              `json:"test_duration_ms"`
	BytesReceived  int                `json:"bytes_received,omitempty"`
	SampleFrames   int                `json:"sample_frames"`
	Lines          []SourceLineResult `json:"lines,omitempty"`
	SampleData     string             `json:"sample_data,omitempty"`
	Error          string             `json:"error,omitempty"`
	Message        string             `json:"message"`
	Suggestion     string             `json:"suggestion,omitempty"`
}

// SourceLineResult is one classified line read from the device during a probe
type SourceLineResult struct {
	Payload   string `json:"payload"`
	EventType string `json:"event_type"`
	Samples   int    `json:"samples"`
}

// SourceDeviceInfo represents an unconfigured serial device found on the host
type SourceDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
	LastSeen     int64  `json:"last_seen"`
}

// handleSourceTest handles POST /api/sources/test
func (s *Server) handleSourceTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SourceTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.PortPath == "" {
		http.Error(w, "Port path is required", http.StatusBadRequest)
		return
	}
	if !isValidPortPath(req.PortPath) {
		http.Error(w, "Invalid port path. Must start with /dev/tty or /dev/serial", http.StatusBadRequest)
		return
	}

	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = 5
	}

	result := testSensorPort(req)

	// A failed probe is a result, not an API error
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// testSensorPort opens the port, nudges the device with query commands,
// and classifies whatever comes back. A streaming IMU answers with a
// mix of sample frames and the query responses; both count as life.
func testSensorPort(req SourceTestRequest) SourceTestResponse {
	startTime := time.Now()

	fail := func(errMsg, suggestion string) SourceTestResponse {
		return SourceTestResponse{
			Success:        false,
			PortPath:       req.PortPath,
			BaudRate:       req.BaudRate,
			TestDurationMS: time.Since(startTime).Milliseconds(),
			Error:          errMsg,
			Message:        "Sensor probe failed",
			Suggestion:     suggestion,
		}
	}

	opts, err := sensormux.PortOptions{
		BaudRate: req.BaudRate,
		DataBits: req.DataBits,
		StopBits: req.StopBits,
		Parity:   req.Parity,
	}.Normalize()
	if err != nil {
		return fail(fmt.Sprintf("Invalid port options: %v", err),
			"Parity must be one of: N (None), E (Even), O (Odd)")
	}
	req.BaudRate = opts.BaudRate

	mode, err := opts.SerialMode()
	if err != nil {
		return fail(fmt.Sprintf("Invalid port options: %v", err), "")
	}

	port, err := serial.Open(req.PortPath, mode)
	if err != nil {
		return fail(fmt.Sprintf("Failed to open port: %v", err), getSuggestionForError(err))
	}
	defer port.Close()

	if err := port.SetReadTimeout(time.Duration(req.TimeoutSeconds) * time.Second); err != nil {
		log.Printf("Warning: Failed to set read timeout: %v", err)
	}

	var received strings.Builder
	var totalBytesRead int

	// Query module info and output settings; a streaming device also
	// interleaves its sample frames into the reads.
	testCommands := []string{"??", "O?"}

	for _, cmd := range testCommands {
		if _, err := port.Write([]byte(cmd + "\r")); err != nil {
			log.Printf("Warning: Failed to write command %s: %v", cmd, err)
			continue
		}

		buf := make([]byte, 1024)
		n, err := port.Read(buf)
		if err != nil {
			log.Printf("Warning: Failed to read response for %s: %v", cmd, err)
			continue
		}
		if n > 0 {
			totalBytesRead += n
			received.Write(buf[:n])
		}
	}

	testDuration := time.Since(startTime).Milliseconds()

	if totalBytesRead == 0 {
		resp := fail("No response from device",
			"Device may be at the wrong baud rate. Try 9600, 115200, or other common rates. Ensure the device is powered on.")
		resp.TestDurationMS = testDuration
		return resp
	}

	var lines []SourceLineResult
	var sampleFrames int
	sampleData := ""

	for _, line := range strings.Split(received.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		result := SourceLineResult{Payload: line, EventType: sensormux.ClassifyPayload(line)}
		switch result.EventType {
		case sensormux.EventTypeSampleFrame, sensormux.EventTypeSampleBatch:
			if samples, err := sensormux.ParseSampleLine(line); err == nil {
				result.Samples = len(samples)
				sampleFrames += len(samples)
			}
		}
		if sampleData == "" {
			sampleData = line
			if len(sampleData) > 100 {
				sampleData = sampleData[:100] + "..."
			}
		}
		lines = append(lines, result)
	}

	message := fmt.Sprintf("Sensor responded with %d sample frames", sampleFrames)
	suggestion := ""
	if sampleFrames == 0 {
		message = "Sensor responded but sent no decodable sample frames"
		suggestion = "Send OJ (JSON frames) or OC (CSV triples) via /api/command to set the output format."
	}

	return SourceTestResponse{
		Success:        true,
		PortPath:       req.PortPath,
		BaudRate:       req.BaudRate,
		TestDurationMS: testDuration,
		BytesReceived:  totalBytesRead,
		SampleFrames:   sampleFrames,
		Lines:          lines,
		SampleData:     sampleData,
		Message:        message,
		Suggestion:     suggestion,
	}
}

// getSuggestionForError provides helpful suggestions based on error type
func getSuggestionForError(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "not found") {
		return "Check that the device is connected and appears in /dev/"
	}

	if strings.Contains(errStr, "permission denied") {
		return "Run: sudo usermod -a -G dialout $USER && sudo reboot"
	}

	if strings.Contains(errStr, "resource busy") || strings.Contains(errStr, "device busy") {
		return "Another process may be using the port. Stop the capture session if this port is an enabled source."
	}

	return "Check device connection and permissions"
}

// handleSourceDevices handles GET /api/sources/devices - List serial
// devices on the host that no source configuration claims yet
func (s *Server) handleSourceDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Database is not configured", http.StatusServiceUnavailable)
		return
	}

	existingConfigs, err := s.db.GetSourceConfigs()
	if err != nil {
		log.Printf("Error fetching existing configs: %v", err)
		http.Error(w, "Failed to fetch existing configurations", http.StatusInternalServerError)
		return
	}

	configuredPorts := make(map[string]bool)
	for _, config := range existingConfigs {
		configuredPorts[config.PortPath] = true
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		log.Printf("Error enumerating serial ports: %v", err)
		http.Error(w, "Failed to enumerate serial ports", http.StatusInternalServerError)
		return
	}

	devices := []SourceDeviceInfo{}
	now := time.Now().Unix()

	for _, portPath := range ports {
		if configuredPorts[portPath] {
			continue
		}

		devices = append(devices, SourceDeviceInfo{
			PortPath:     portPath,
			FriendlyName: getFriendlyName(portPath),
			LastSeen:     now,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	parts := strings.Split(portPath, "/")
	if len(parts) > 0 {
		deviceName := parts[len(parts)-1]

		switch {
		case strings.HasPrefix(deviceName, "ttyUSB"):
			return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
		case strings.HasPrefix(deviceName, "ttyACM"):
			return fmt.Sprintf("USB CDC Device (%s)", deviceName)
		case strings.HasPrefix(deviceName, "ttyAMA"):
			return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
		default:
			return deviceName
		}
	}

	return portPath
}
