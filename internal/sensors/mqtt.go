package sensors

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

// MQTTClient is the subset of mqtt.Client used by the MQTT driver.
type MQTTClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTConfig describes the remote IMU stream.
type MQTTConfig struct {
	Broker     string
	ClientID   string
	Topic      string
	AccelRange byte
	GyroRange  byte
}

// MQTT subscribes to imu.IMURaw JSON messages published by a remote IMU
// producer. The remote side sets the cadence; the interval passed to
// Subscribe is only used to log a mismatch.
type MQTT struct {
	cfg    MQTTConfig
	client MQTTClient

	mu      sync.Mutex
	handler Handler
	last    time.Time
}

// NewMQTT creates a driver with a paho client built from cfg. A lost
// connection is reported to the subscribed handler.
func NewMQTT(cfg MQTTConfig) *MQTT {
	d := &MQTT{cfg: cfg}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectionLostHandler(d.connectionLost)
	d.client = mqtt.NewClient(opts)
	return d
}

func newMQTTWithClient(cfg MQTTConfig, client MQTTClient) *MQTT {
	return &MQTT{cfg: cfg, client: client}
}

func (d *MQTT) Name() string { return "mqtt" }

func (d *MQTT) Subscribe(interval time.Duration, h Handler) error {
	d.mu.Lock()
	if d.handler != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: mqtt: already subscribed", ErrDriverUnavailable)
	}
	d.handler = h
	d.last = time.Time{}
	d.mu.Unlock()

	if !d.client.IsConnected() {
		if token := d.client.Connect(); token.Wait() && token.Error() != nil {
			d.clearHandler()
			return fmt.Errorf("%w: mqtt connect %s: %w", ErrDriverUnavailable, d.cfg.Broker, token.Error())
		}
		monitoring.Logf("mqtt driver: connected to MQTT broker at %s", d.cfg.Broker)
	}

	if token := d.client.Subscribe(d.cfg.Topic, 0, d.onMessage); token.Wait() && token.Error() != nil {
		d.clearHandler()
		return fmt.Errorf("%w: mqtt subscribe %s: %w", ErrDriverUnavailable, d.cfg.Topic, token.Error())
	}
	monitoring.Logf("mqtt driver: subscribed to %s (expecting one message every %v)", d.cfg.Topic, interval)
	return nil
}

func (d *MQTT) clearHandler() {
	d.mu.Lock()
	d.handler = nil
	d.mu.Unlock()
}

func (d *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw imu.IMURaw
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		monitoring.Logf("mqtt driver: imu unmarshal error on %s: %v", msg.Topic(), err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler == nil {
		return
	}
	accel, gyro := raw.Readings(d.cfg.AccelRange, d.cfg.GyroRange, time.Now())
	if !d.last.IsZero() && !accel.Time.After(d.last) {
		monitoring.Logf("mqtt driver: dropping out-of-order sample at %v", accel.Time)
		return
	}
	d.last = accel.Time
	deliver(d.handler, accel, gyro)
}

func (d *MQTT) connectionLost(_ mqtt.Client, err error) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h.OnError(fmt.Errorf("mqtt: connection lost: %w", err))
	}
}

// Unsubscribe stops delivery. The broker connection is kept for the next
// Subscribe; Close releases it.
func (d *MQTT) Unsubscribe() error {
	d.mu.Lock()
	if d.handler == nil {
		d.mu.Unlock()
		return nil
	}
	d.handler = nil
	d.mu.Unlock()

	if !d.client.IsConnected() {
		return nil
	}
	if token := d.client.Unsubscribe(d.cfg.Topic); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt unsubscribe %s: %w", d.cfg.Topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (d *MQTT) Close() error {
	if d.client.IsConnected() {
		d.client.Disconnect(250)
	}
	return nil
}
