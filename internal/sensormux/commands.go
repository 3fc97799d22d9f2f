package sensormux

import "strings"

// Allow list of two character commands understood by the IMU breakout
// board's control UART. Anything not listed here is rejected by the HTTP
// surfaces before it reaches the device.
var allowedCommands = []string{
	"??", // Query overall module information
	"?R", // Read reset reason
	"?P", // Read sensor part number
	"?N", // Read serial number
	"?D", // Read firmware build date
	"?V", // Read firmware version
	"?B", // Read firmware build number
	"L?", // Read sensor label

	// Output Units
	"U?", // Query current acceleration units
	"UM", // Set units to meters per second squared
	"UG", // Set units to g
	"Ug", // Set units to milli-g

	// Output Format
	"O?", // Query output settings
	"OJ", // Set output format to JSON frames
	"OC", // Set output format to CSV triples
	"OB", // Enable batched output (one JSON array per line)
	"Ob", // Disable batched output (one frame per line)
	"OT", // Enable device timestamps with each frame
	"Ot", // Disable device timestamps

	// Sampling Rate
	"S?", // Query current sampling rate
	"SI", // Set sampling rate to 10 samples/second
	"SL", // Set sampling rate to 25 samples/second
	"SV", // Set sampling rate to 50 samples/second
	"SC", // Set sampling rate to 100 samples/second
	"SX", // Set sampling rate to 200 samples/second

	// Accelerometer Range
	"G?", // Query full-scale range
	"G2", // Set full-scale range to +/-2 g
	"G4", // Set full-scale range to +/-4 g
	"G8", // Set full-scale range to +/-8 g
	"GG", // Set full-scale range to +/-16 g

	// Filtering
	"F?", // Query on-board low-pass filter setting
	"F+", // Enable on-board low-pass filter
	"F-", // Disable on-board low-pass filter (raw output)

	// Counters
	"N?", // Query frame counter
	"N!", // Reset frame counter

	// Clock
	"C?", // Query sensor clock (time since power-on)

	// Power
	"P?", // Query power mode
	"PA", // Set active power mode
	"PI", // Set idle power mode

	// Persistent Memory
	"A!", // Save current configuration to persistent memory
	"A?", // Query persistent memory settings
	"A.", // Read current settings from persistent memory
	"AX", // Reset flash settings to factory defaults
}

// IsAllowedCommand reports whether a command may be forwarded to the device.
// Besides the two character allow list, clock-set commands of the form
// "C=<unix seconds>" are accepted.
func IsAllowedCommand(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	if after, ok := strings.CutPrefix(command, "C="); ok {
		if after == "" {
			return false
		}
		for _, r := range after {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	for _, allowed := range allowedCommands {
		if command == allowed {
			return true
		}
	}
	return false
}
