package app

import (
	"fmt"

	"github.com/relabs-tech/activity_recognizer/internal/config"
	"github.com/relabs-tech/activity_recognizer/internal/sensors"
)

// NewDriver builds the sensor driver selected by DRIVER. Hardware is not
// touched until the first Subscribe.
func NewDriver(cfg *config.Config) (sensors.Driver, error) {
	switch cfg.Driver {
	case config.DriverMock:
		return sensors.NewMock(), nil
	case config.DriverMPU9250:
		return sensors.NewMPU9250(sensors.MPU9250Config{
			Name:       "imu",
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
		}), nil
	case config.DriverMQTT:
		return sensors.NewMQTT(sensors.MQTTConfig{
			Broker:     cfg.MQTTBroker,
			ClientID:   cfg.MQTTClientIDRecognizer + "-imu",
			Topic:      cfg.TopicIMU,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
		}), nil
	case config.DriverSerial:
		return sensors.NewSerial(sensors.SerialConfig{
			PortName: cfg.SerialPort,
			BaudRate: uint(cfg.SerialBaudRate),
		}), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}
