package imu

import (
	"math"
	"time"
)

// StandardGravity is g in m/s².
const StandardGravity = 9.80665

// IMURaw is one raw accel+gyro reading in sensor counts, as published on the
// raw IMU MQTT topic by cmd/imu_producer.
type IMURaw struct {
	Source string `json:"source"`
	TimeMs int64  `json:"time_ms"` // unix milliseconds at read time

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// AccelLSBPerG returns the accelerometer sensitivity for an MPU9250 range
// code (0=±2g, 1=±4g, 2=±8g, 3=±16g).
func AccelLSBPerG(rangeCode byte) float64 {
	return 16384.0 / float64(uint(1)<<(rangeCode&3))
}

// GyroLSBPerDPS returns the gyroscope sensitivity for an MPU9250 range code
// (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s).
func GyroLSBPerDPS(rangeCode byte) float64 {
	return 131.0 / float64(uint(1)<<(rangeCode&3))
}

// Readings converts the raw counts into SI readings: accel in m/s² and gyro in
// rad/s. A zero TimeMs falls back to now.
func (r IMURaw) Readings(accelRange, gyroRange byte, now time.Time) (accel, gyro Reading) {
	t := now
	if r.TimeMs != 0 {
		t = time.UnixMilli(r.TimeMs)
	}
	ka := StandardGravity / AccelLSBPerG(accelRange)
	kg := (math.Pi / 180) / GyroLSBPerDPS(gyroRange)
	accel = Reading{X: float64(r.Ax) * ka, Y: float64(r.Ay) * ka, Z: float64(r.Az) * ka, Time: t}
	gyro = Reading{X: float64(r.Gx) * kg, Y: float64(r.Gy) * kg, Z: float64(r.Gz) * kg, Time: t}
	return accel, gyro
}
