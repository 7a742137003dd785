package app

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_recognizer/internal/config"
	"github.com/relabs-tech/activity_recognizer/internal/sensors"
	"github.com/relabs-tech/activity_recognizer/internal/sink"
)

// imuPublishTimeout bounds one raw sample publish; at 100 Hz a slow broker
// must not stall the tick loop for long.
const imuPublishTimeout = 50 * time.Millisecond

// RunIMUProducer reads the local MPU9250 and publishes raw samples to
// TOPIC_IMU, for a recognizer running the mqtt driver elsewhere.
func RunIMUProducer() error {
	log.Println("starting activity IMU producer")

	cfg := config.Get()

	src, err := sensors.OpenMPU9250(sensors.MPU9250Config{
		Name:       "imu",
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	})
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDIMU)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT, publishing raw IMU to %s every %v", cfg.TopicIMU, cfg.SampleIntervalDuration())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := publishIMU(ctx, src, client, cfg.TopicIMU, cfg.SampleIntervalDuration())
	log.Printf("IMU producer: shutting down after %d samples", n)
	return nil
}

// publishIMU publishes one raw reading per tick until ctx is done and
// returns the number of samples published. Read and publish errors are
// logged and the tick is skipped.
func publishIMU(ctx context.Context, src sensors.IMURawReader, client sink.MQTTPublisher, topic string, interval time.Duration) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-ctx.Done():
			return published
		case <-ticker.C:
		}

		raw, err := src.ReadRaw()
		if err != nil {
			log.Printf("error reading IMU: %v", err)
			continue
		}
		payload, err := json.Marshal(raw)
		if err != nil {
			log.Printf("json marshal error (imu): %v", err)
			continue
		}
		token := client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(imuPublishTimeout) {
			log.Printf("MQTT publish timeout (imu)")
			continue
		}
		if token.Error() != nil {
			log.Printf("MQTT publish error (imu): %v", token.Error())
			continue
		}
		published++
	}
}
