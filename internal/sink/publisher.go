package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
)

// publishTimeout bounds how long the hub waits for the broker.
const publishTimeout = 2 * time.Second

// MQTTPublisher is the subset of mqtt.Client used by Publisher.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher publishes each result as retained JSON on an MQTT topic.
type Publisher struct {
	client MQTTPublisher
	topic  string
}

// NewPublisher creates a publisher using an already connected client.
func NewPublisher(client MQTTPublisher, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Name() string { return "mqtt" }

func (p *Publisher) Emit(r activity.Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("json marshal error (result): %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("MQTT publish timeout (%s)", p.topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", p.topic, token.Error())
	}
	return nil
}
