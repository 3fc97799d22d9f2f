package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/stride-data/activity.report/internal/har"
)

// sink delivers sample batches somewhere.
type sink interface {
	Send(samples []har.Sample) error
	Close() error
}

// ndjsonFrame matches the raw-capture line layout: arrival time in
// Unix milliseconds plus the three axes.
type ndjsonFrame struct {
	T int64 `json:"t"`
	har.Sample
}

// stdoutSink writes one NDJSON frame per line. Batch members are
// back-stamped at the nominal sample period so the file carries a
// plausible time axis.
type stdoutSink struct {
	w      *bufio.Writer
	stepMS int64
}

func newStdoutSink(w io.Writer, rateHz int) *stdoutSink {
	step := int64(1000 / rateHz)
	return &stdoutSink{w: bufio.NewWriter(w), stepMS: step}
}

func (s *stdoutSink) Send(samples []har.Sample) error {
	now := time.Now().UnixMilli()
	for i, sample := range samples {
		t := now - int64(len(samples)-1-i)*s.stepMS
		line, err := json.Marshal(ndjsonFrame{T: t, Sample: sample})
		if err != nil {
			return err
		}
		s.w.Write(line)
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *stdoutSink) Close() error {
	return s.w.Flush()
}

// httpSink POSTs batches to a daemon's /api/samples endpoint,
// optionally bracketing the stream with a capture session.
type httpSink struct {
	client  *http.Client
	baseURL string
	session string
}

func newHTTPSink(baseURL string, startCapture bool) (*httpSink, error) {
	s := &httpSink{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	if startCapture {
		id, err := s.captureCall("/api/capture/start")
		if err != nil {
			return nil, fmt.Errorf("starting capture session: %w", err)
		}
		s.session = id
		log.Printf("Capture session %s", id)
	}
	return s, nil
}

func (s *httpSink) Send(samples []har.Sample) error {
	payload, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.baseURL+"/api/samples", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("daemon has no capture session open (pass -start-capture or POST /api/capture/start)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Close stops the capture session if this sink started one.
func (s *httpSink) Close() error {
	if s.session == "" {
		return nil
	}
	id, err := s.captureCall("/api/capture/stop")
	if err != nil {
		return fmt.Errorf("stopping capture session: %w", err)
	}
	log.Printf("Capture session %s closed", id)
	return nil
}

func (s *httpSink) captureCall(path string) (string, error) {
	resp, err := s.client.Post(s.baseURL+path, "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var cr struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decoding capture response: %w", err)
	}
	return cr.SessionID, nil
}

// mqttSink publishes batches as JSON arrays to a frame topic, the same
// payload shape the daemon's MQTT source subscribes to.
type mqttSink struct {
	client mqtt.Client
	topic  string
}

func newMQTTSink(brokerURL, topic string) (*mqttSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("simsensor-" + uuid.NewString()[:8]).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", brokerURL, token.Error())
	}
	return &mqttSink{client: client, topic: topic}, nil
}

func (s *mqttSink) Send(samples []har.Sample) error {
	payload, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	if token := s.client.Publish(s.topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", s.topic, token.Error())
	}
	return nil
}

func (s *mqttSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
