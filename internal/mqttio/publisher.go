package mqttio

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
)

// DefaultTopicPrefix roots the publisher's topics: predictions go to
// <prefix>/prediction, status lines to <prefix>/status.
const DefaultTopicPrefix = "activity"

type predictionPayload struct {
	har.PredictionResult
	TS int64 `json:"ts"`
}

type statusPayload struct {
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

var _ har.Sink = (*Publisher)(nil)

// Publisher mirrors pipeline output onto MQTT, retained so a consumer
// that connects late still sees current state. Publishes never block
// the caller; delivery failures are logged from the token goroutine.
type Publisher struct {
	client mqtt.Client
	prefix string
}

// NewPublisher connects to the broker and returns the sink. An empty
// prefix means DefaultTopicPrefix.
func NewPublisher(brokerURL, prefix string) (*Publisher, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID("publisher")).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqttio: publisher connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", brokerURL, token.Error())
	}
	return &Publisher{client: client, prefix: prefix}, nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

// PublishStatus mirrors an operator status line.
func (p *Publisher) PublishStatus(status string) {
	p.publish(p.prefix+"/status", statusPayload{Status: status, TS: time.Now().UnixMilli()})
}

// PublishResult mirrors one classified window.
func (p *Publisher) PublishResult(result har.PredictionResult) {
	p.publish(p.prefix+"/prediction", predictionPayload{PredictionResult: result, TS: time.Now().UnixMilli()})
}

func (p *Publisher) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		monitoring.Logf("mqttio: marshaling %T: %v", v, err)
		return
	}
	token := p.client.Publish(topic, 0, true, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			monitoring.Logf("mqttio: publishing to %s: %v", topic, token.Error())
		}
	}()
}
