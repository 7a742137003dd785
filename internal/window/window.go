// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package window accumulates IMU samples into fixed-length windows and hands
// each completed window to a single consumer.
package window

import (
	"time"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
)

// DefaultSize is 2 s of samples at 100 Hz.
const DefaultSize = 200

// Window is an ordered run of exactly Len() samples stored flattened in
// row-major order: Data[i*imu.Channels+j] is channel j of sample i.
type Window struct {
	Seq     uint64    `json:"seq"`
	Session string    `json:"session"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Data    []float64 `json:"data"`

	gen uint64
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	return len(w.Data) / imu.Channels
}

// Row returns the six values of sample i. The slice aliases Data.
func (w Window) Row(i int) []float64 {
	return w.Data[i*imu.Channels : (i+1)*imu.Channels : (i+1)*imu.Channels]
}

// Sample rebuilds sample i. Per-sample timestamps are not kept; only the
// window Start and End are.
func (w Window) Sample(i int) imu.Sample {
	r := w.Row(i)
	return imu.Sample{
		AccelX: r[0],
		AccelY: r[1],
		AccelZ: r[2],
		GyroX:  r[3],
		GyroY:  r[4],
		GyroZ:  r[5],
	}
}

// Duration is the time between the first and last sample.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
