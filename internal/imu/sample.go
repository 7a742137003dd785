// Package imu defines the inertial measurement types that flow from the
// sensor drivers into the windowing pipeline.
package imu

import "time"

// Channels is the number of values in one Sample (3 accel + 3 gyro axes).
const Channels = 6

// Reading is a single event from one sensor stream.
type Reading struct {
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	Z    float64   `json:"z"`
	Time time.Time `json:"time"`
}

// Sample is one joined accelerometer+gyroscope reading. Accel is in m/s²,
// gyro in rad/s. Samples are values and are never mutated once built.
type Sample struct {
	Time time.Time `json:"time"`

	AccelX float64 `json:"ax"`
	AccelY float64 `json:"ay"`
	AccelZ float64 `json:"az"`

	GyroX float64 `json:"gx"`
	GyroY float64 `json:"gy"`
	GyroZ float64 `json:"gz"`
}

// Join builds a Sample from an accelerometer and a gyroscope reading. The
// sample takes the accelerometer timestamp.
func Join(accel, gyro Reading) Sample {
	return Sample{
		Time:   accel.Time,
		AccelX: accel.X,
		AccelY: accel.Y,
		AccelZ: accel.Z,
		GyroX:  gyro.X,
		GyroY:  gyro.Y,
		GyroZ:  gyro.Z,
	}
}

// Values returns the sample in row order: ax, ay, az, gx, gy, gz.
func (s Sample) Values() [Channels]float64 {
	return [Channels]float64{s.AccelX, s.AccelY, s.AccelZ, s.GyroX, s.GyroY, s.GyroZ}
}
