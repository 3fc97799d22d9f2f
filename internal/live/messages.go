package live

import "time"

// Frame types sent to dashboard clients. Every frame is a JSON object
// with a "type" discriminator and a "ts" Unix-millisecond stamp.
const (
	TypeWelcome    = "welcome"
	TypeStatus     = "status"
	TypePrediction = "prediction"
	TypeSample     = "sample"
	TypeError      = "error"
)

type welcomeMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	TS       int64  `json:"ts"`
}

type statusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TS      int64  `json:"ts"`
}

type predictionMessage struct {
	Type       string `json:"type"`
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
	Level      int    `json:"level"`
	TS         int64  `json:"ts"`
}

type sampleMessage struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	TS   int64   `json:"ts"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	TS    int64  `json:"ts"`
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
