// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline wires a sensor driver, the window buffer and the
// classification step into a start/stop-able recognition session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
	"github.com/relabs-tech/activity_recognizer/internal/sensors"
	"github.com/relabs-tech/activity_recognizer/internal/window"
)

// ProducerStats counts sensor events seen by a Producer.
type ProducerStats struct {
	Samples uint64 `json:"samples"` // pushed into the buffer
	Skipped uint64 `json:"skipped"` // accel events before the first gyro reading
	Dropped uint64 `json:"dropped"` // pushes abandoned by Stop
}

// Producer receives driver callbacks, joins the two sensor streams into
// samples and pushes them into the window buffer.
//
// Join policy: each accelerometer event emits one sample together with the
// most recent gyroscope reading. Gyroscope events only update that reading.
type Producer struct {
	driver  sensors.Driver
	buffer  *window.Buffer
	onFault func(session string, err error)
	newID   func() string

	lifeMu sync.Mutex // serializes Start and Stop

	stateMu sync.Mutex
	running bool
	session string
	ctx     context.Context
	cancel  context.CancelFunc

	joinMu   sync.Mutex
	gyro     imu.Reading
	haveGyro bool

	pushMu sync.Mutex

	samples atomic.Uint64
	skipped atomic.Uint64
	dropped atomic.Uint64
}

// NewProducer creates a producer pushing into buffer. onFault, if not nil,
// is called from the driver goroutine with the faulted session; it must not
// call Stop synchronously.
func NewProducer(driver sensors.Driver, buffer *window.Buffer, onFault func(session string, err error)) *Producer {
	return &Producer{
		driver:  driver,
		buffer:  buffer,
		onFault: onFault,
		newID:   uuid.NewString,
	}
}

// Start subscribes to the driver and begins a new session. It is a no-op
// when already running. windowSize must match the buffer.
func (p *Producer) Start(windowSize int, interval time.Duration) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.Running() {
		return nil
	}
	if windowSize != p.buffer.Size() {
		return fmt.Errorf("window size %d does not match buffer size %d", windowSize, p.buffer.Size())
	}
	if interval <= 0 {
		return fmt.Errorf("sampling interval must be positive, got %v", interval)
	}

	session := p.newID()
	p.buffer.Reset(session)
	p.resetJoin()

	p.stateMu.Lock()
	p.session = session
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true
	p.stateMu.Unlock()

	if err := p.driver.Subscribe(interval, p); err != nil {
		p.stateMu.Lock()
		p.running = false
		p.cancel()
		p.stateMu.Unlock()
		p.buffer.Reset("")
		if !errors.Is(err, sensors.ErrDriverUnavailable) {
			err = fmt.Errorf("%w: %w", sensors.ErrDriverUnavailable, err)
		}
		return err
	}
	monitoring.Logf("producer: session %s started (%s driver, window %d, interval %v)", session, p.driver.Name(), windowSize, interval)
	return nil
}

// Stop unsubscribes from the driver and discards the partial window. It is
// a no-op when not running. No sample is pushed after Stop returns. Stop
// must not be called from a driver callback.
func (p *Producer) Stop() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return nil
	}
	p.running = false
	p.cancel() // releases a push blocked on backpressure
	session := p.session
	p.stateMu.Unlock()

	err := p.driver.Unsubscribe()
	if err != nil {
		err = fmt.Errorf("unsubscribe %s driver: %w", p.driver.Name(), err)
	}
	p.buffer.Reset("")
	p.resetJoin()
	monitoring.Logf("producer: session %s stopped", session)
	return err
}

// Running reports whether the producer is subscribed.
func (p *Producer) Running() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.running
}

// Session returns the ID of the current or last session.
func (p *Producer) Session() string {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.session
}

// Stats returns a snapshot of the counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Samples: p.samples.Load(),
		Skipped: p.skipped.Load(),
		Dropped: p.dropped.Load(),
	}
}

func (p *Producer) resetJoin() {
	p.joinMu.Lock()
	p.gyro = imu.Reading{}
	p.haveGyro = false
	p.joinMu.Unlock()
}

// pushContext returns the session context, or nil when stopped.
func (p *Producer) pushContext() context.Context {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if !p.running {
		return nil
	}
	return p.ctx
}

// OnGyro records the latest gyroscope reading.
func (p *Producer) OnGyro(r imu.Reading) {
	if p.pushContext() == nil {
		return
	}
	p.joinMu.Lock()
	p.gyro = r
	p.haveGyro = true
	p.joinMu.Unlock()
}

// OnAccel joins r with the latest gyroscope reading and pushes the sample.
func (p *Producer) OnAccel(r imu.Reading) {
	ctx := p.pushContext()
	if ctx == nil {
		return
	}
	p.joinMu.Lock()
	gyro, ok := p.gyro, p.haveGyro
	p.joinMu.Unlock()
	if !ok {
		p.skipped.Add(1)
		return
	}
	p.push(ctx, imu.Join(r, gyro))
}

// OnDriverEvent handles a reading pair taken in one transaction.
func (p *Producer) OnDriverEvent(accel, gyro imu.Reading) {
	ctx := p.pushContext()
	if ctx == nil {
		return
	}
	p.joinMu.Lock()
	p.gyro = gyro
	p.haveGyro = true
	p.joinMu.Unlock()
	p.push(ctx, imu.Join(accel, gyro))
}

func (p *Producer) push(ctx context.Context, s imu.Sample) {
	p.pushMu.Lock()
	defer p.pushMu.Unlock()
	if err := p.buffer.Push(ctx, s); err != nil {
		p.dropped.Add(1)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, window.ErrClosed) {
			monitoring.Logf("producer: push failed: %v", err)
		}
		return
	}
	p.samples.Add(1)
}

// OnError reports a driver fault. Intake stops immediately; the fault
// handler decides how to stop the session.
func (p *Producer) OnError(err error) {
	p.stateMu.Lock()
	running, session := p.running, p.session
	if running {
		p.cancel()
	}
	p.stateMu.Unlock()
	if !running {
		return
	}
	monitoring.Logf("producer: driver fault: %v", err)
	if p.onFault != nil {
		p.onFault(session, err)
	}
}
