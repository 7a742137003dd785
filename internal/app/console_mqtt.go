package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/config"
	"github.com/relabs-tech/activity_recognizer/internal/imu"
)

// RunConsoleMQTT prints results published by a recognizer, and raw IMU
// samples when showRaw is set.
func RunConsoleMQTT(showRaw bool) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	resultToken := client.Subscribe(cfg.TopicActivity, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r activity.Result
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: result unmarshal error: %v", err)
			return
		}
		fmt.Println(formatResult(r))
	})
	resultToken.Wait()
	if resultToken.Error() != nil {
		return resultToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicActivity)

	if showRaw {
		imuToken := client.Subscribe(cfg.TopicIMU, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var s imu.IMURaw
			if err := json.Unmarshal(msg.Payload(), &s); err != nil {
				log.Printf("console: imu unmarshal error: %v", err)
				return
			}
			fmt.Printf(
				"[IMU]  t=%d ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d\n",
				s.TimeMs, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz,
			)
		})
		imuToken.Wait()
		if imuToken.Error() != nil {
			return imuToken.Error()
		}
		log.Printf("console: subscribed to %s", cfg.TopicIMU)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatResult(r activity.Result) string {
	line := fmt.Sprintf("[ACT]  #%-5d %-22s conf=%.3f", r.WindowSeq, r.Label, r.Confidence)
	if r.Label == activity.Unknown {
		line += fmt.Sprintf("  (raw class=%d conf=%.3f)", r.RawIndex, r.RawConfidence)
	}
	return line
}
