// Package mqttio moves accelerometer frames and classification output
// over MQTT. Source subscribes to a frame topic and feeds the capture
// layer; Publisher mirrors pipeline output onto retained topics for
// home-automation consumers.
package mqttio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/stride-data/activity.report/internal/db"
	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
)

const (
	// DefaultFrameTopic receives JSON sample frames when a source row
	// carries no topic of its own.
	DefaultFrameTopic = "activity/accel"

	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds

	parseFailureLogEvery = 250
)

// clientID builds a broker-unique client id. Brokers kick the previous
// holder on a collision, so every connection gets a random suffix.
func clientID(role string) string {
	return fmt.Sprintf("har-%s-%s", role, uuid.NewString()[:8])
}

// Source subscribes to an MQTT frame topic and emits decoded samples.
// It satisfies the capture layer's source contract.
type Source struct {
	cfg db.SourceConfig

	parseFailures atomic.Uint64
}

// NewSource builds a source from an mqtt source row: PortPath is the
// broker URL, Topic the subscription.
func NewSource(cfg db.SourceConfig) *Source {
	return &Source{cfg: cfg}
}

// Name identifies the source in logs and session rows.
func (s *Source) Name() string {
	if s.cfg.Name != "" {
		return s.cfg.Name
	}
	return s.cfg.PortPath
}

// Run connects to the broker, subscribes, and emits decoded samples
// until ctx ends. Payloads that do not decode are counted and dropped;
// a phone app in the same house publishing unrelated JSON must not
// kill the stream.
func (s *Source) Run(ctx context.Context, emit func(har.Sample)) error {
	topic := s.cfg.Topic
	if topic == "" {
		topic = DefaultFrameTopic
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.PortPath).
		SetClientID(clientID("source")).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqttio: %s connection lost: %v", s.Name(), err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to broker %s: %w", s.cfg.PortPath, token.Error())
	}
	defer client.Disconnect(disconnectQuiesce)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		samples, err := har.ParseFrameBatch(msg.Payload())
		if err != nil {
			if n := s.parseFailures.Add(1); n == 1 || n%parseFailureLogEvery == 0 {
				monitoring.Logf("mqttio: %s dropped %d undecodable payloads (last: %v)", s.Name(), n, err)
			}
			return
		}
		for _, sample := range samples {
			emit(sample)
		}
	}
	if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}
	monitoring.Logf("mqttio: %s subscribed to %s", s.Name(), topic)

	<-ctx.Done()
	if token := client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
		monitoring.Logf("mqttio: unsubscribing %s: %v", topic, token.Error())
	}
	return ctx.Err()
}
