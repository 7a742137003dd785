// Package sensors provides the motion-sensor drivers that feed the
// windowing pipeline: a mock generator, a local MPU9250 over SPI, a remote
// IMU over MQTT and a serial IMU speaking NMEA-framed sentences.
package sensors

import (
	"errors"
	"time"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
)

// ErrDriverUnavailable is returned by Subscribe when the sensor cannot be
// reached or is already subscribed.
var ErrDriverUnavailable = errors.New("sensor driver unavailable")

// Handler receives sensor events. Methods may be called from any goroutine,
// including concurrently for different streams.
type Handler interface {
	OnAccel(r imu.Reading)
	OnGyro(r imu.Reading)
	OnError(err error)
}

// PairHandler is implemented by handlers that accept an accelerometer and a
// gyroscope reading taken in the same transaction.
type PairHandler interface {
	OnDriverEvent(accel, gyro imu.Reading)
}

// Driver delivers accelerometer and gyroscope events at a requested cadence.
type Driver interface {
	Name() string
	// Subscribe starts delivering events to h every interval. It fails with
	// an error wrapping ErrDriverUnavailable when the sensor cannot be used.
	Subscribe(interval time.Duration, h Handler) error
	// Unsubscribe stops delivery. No events are delivered after it returns.
	// It is safe to call when not subscribed.
	Unsubscribe() error
}

// deliver hands a paired reading to h, preferring the combined callback.
func deliver(h Handler, accel, gyro imu.Reading) {
	if ph, ok := h.(PairHandler); ok {
		ph.OnDriverEvent(accel, gyro)
		return
	}
	h.OnGyro(gyro)
	h.OnAccel(accel)
}
