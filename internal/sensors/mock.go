// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
)

// Mock generates smoothly changing accelerometer and gyroscope streams.
// The two streams tick on separate goroutines, like real sensor callbacks.
type Mock struct {
	mu      sync.Mutex
	start   time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMock creates a mock driver.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Subscribe(interval time.Duration, h Handler) error {
	if interval <= 0 {
		return fmt.Errorf("%w: mock: interval must be positive", ErrDriverUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("%w: mock: already subscribed", ErrDriverUnavailable)
	}
	m.start = time.Now()
	m.stop = make(chan struct{})
	m.running = true

	m.wg.Add(2)
	go m.stream(interval, m.stop, func(t time.Time) { h.OnGyro(m.gyro(t)) })
	go m.stream(interval, m.stop, func(t time.Time) { h.OnAccel(m.accel(t)) })
	return nil
}

func (m *Mock) stream(interval time.Duration, stop <-chan struct{}, emit func(time.Time)) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			emit(t)
		}
	}
}

func (m *Mock) accel(t time.Time) imu.Reading {
	e := t.Sub(m.start).Seconds()
	return imu.Reading{
		X:    2 * math.Sin(2*math.Pi*e),
		Y:    1.5 * math.Cos(2*math.Pi*0.7*e),
		Z:    imu.StandardGravity + 0.5*math.Sin(2*math.Pi*2*e),
		Time: t,
	}
}

func (m *Mock) gyro(t time.Time) imu.Reading {
	e := t.Sub(m.start).Seconds()
	return imu.Reading{
		X:    0.3 * math.Sin(2*math.Pi*0.5*e),
		Y:    0.2 * math.Cos(2*math.Pi*0.3*e),
		Z:    0.1 * math.Sin(2*math.Pi*e),
		Time: t,
	}
}

func (m *Mock) Unsubscribe() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	close(m.stop)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}
