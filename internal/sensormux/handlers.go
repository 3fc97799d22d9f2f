package sensormux

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// CurrentState holds the latest info values received from the device
// and is intentionally package-level so admin routes or tests can
// inspect it. Guard access with stateMu: the console subscriber writes
// while the admin endpoint reads.
var (
	stateMu      sync.Mutex
	CurrentState map[string]any
)

// HandleDeviceInfo merges a JSON info response from the device into
// CurrentState. Query commands such as "??" or "S?" answer with these
// payloads.
func HandleDeviceInfo(payload string) error {
	var infoValues map[string]any

	if err := json.Unmarshal([]byte(payload), &infoValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	// update the current state with the new info values
	stateMu.Lock()
	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	for k, v := range infoValues {
		CurrentState[k] = v
	}
	stateMu.Unlock()

	// log the current line
	log.Printf("Device Info Line: %+v", payload)

	return nil
}

// DeviceState returns a copy of the accumulated info values.
func DeviceState() map[string]any {
	stateMu.Lock()
	defer stateMu.Unlock()

	out := make(map[string]any, len(CurrentState))
	for k, v := range CurrentState {
		out[k] = v
	}
	return out
}
