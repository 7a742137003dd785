// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
	"github.com/relabs-tech/activity_recognizer/internal/sensors"
	"github.com/relabs-tech/activity_recognizer/internal/window"
)

// Settings are the session parameters.
type Settings struct {
	WindowSize     int
	SampleInterval time.Duration
	// StrictConsumer makes an overlapping Take fail instead of blocking.
	StrictConsumer bool
}

// Status is a snapshot of the pipeline for the control surface.
type Status struct {
	Running        bool          `json:"running"`
	Session        string        `json:"session,omitempty"`
	Driver         string        `json:"driver"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	WindowSize     int           `json:"window_size"`
	SampleInterval time.Duration `json:"sample_interval_ns"`
	Pending        int           `json:"pending_samples"`
	LastError      string        `json:"last_error,omitempty"`
	Producer       ProducerStats `json:"producer"`
	Consumer       ConsumerStats `json:"consumer"`
}

// Pipeline owns one producer, one buffer and one consumer and runs them as
// start/stop-able sessions.
type Pipeline struct {
	settings Settings
	driver   sensors.Driver
	buffer   *window.Buffer
	producer *Producer
	consumer *Consumer

	mu        sync.Mutex
	running   bool
	session   string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	lastErr   error

	// faultMu orders faults.Add against Close's Wait. It is separate from
	// mu because fault runs on driver goroutines that Stop waits for.
	faultMu sync.Mutex
	closed  bool
	faults  sync.WaitGroup
}

// New creates a stopped pipeline.
func New(driver sensors.Driver, classifier Classifier, settings Settings) (*Pipeline, error) {
	var opts []window.Option
	if settings.StrictConsumer {
		opts = append(opts, window.WithStrictConsumer())
	}
	buf, err := window.New(settings.WindowSize, opts...)
	if err != nil {
		return nil, err
	}
	if settings.SampleInterval <= 0 {
		return nil, fmt.Errorf("sample interval must be positive, got %v", settings.SampleInterval)
	}
	p := &Pipeline{
		settings: settings,
		driver:   driver,
		buffer:   buf,
		consumer: NewConsumer(buf, classifier),
	}
	p.producer = NewProducer(driver, buf, p.fault)
	return p, nil
}

// Start begins a new session. It is a no-op when already running.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.consumer.Run(ctx); err != nil {
			monitoring.Logf("pipeline: consumer exited: %v", err)
		}
	}()

	if err := p.producer.Start(p.settings.WindowSize, p.settings.SampleInterval); err != nil {
		cancel()
		<-done
		p.lastErr = err
		return err
	}

	p.running = true
	p.session = p.producer.Session()
	p.startedAt = time.Now()
	p.cancel = cancel
	p.done = done
	p.lastErr = nil
	monitoring.Logf("pipeline: started session %s", p.session)
	return nil
}

// Stop ends the session: the driver is unsubscribed, the partial window is
// discarded and the consumer goroutine has exited when Stop returns. A
// completed window the consumer has not taken yet is discarded too and
// produces no result. It is a no-op when not running.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	if !p.running {
		return nil
	}
	err := p.producer.Stop()
	p.cancel()
	<-p.done
	p.running = false
	monitoring.Logf("pipeline: stopped session %s", p.session)
	return err
}

// Toggle starts a stopped pipeline or stops a running one and reports
// whether it is running afterwards.
func (p *Pipeline) Toggle() (bool, error) {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if running {
		return false, p.Stop()
	}
	if err := p.Start(); err != nil {
		return false, err
	}
	return true, nil
}

// fault is called by the producer on a driver fault. The session is
// stopped from a separate goroutine so the driver callback can return.
func (p *Pipeline) fault(session string, err error) {
	p.faultMu.Lock()
	defer p.faultMu.Unlock()
	if p.closed {
		return
	}
	p.faults.Add(1)
	go func() {
		defer p.faults.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.running || p.session != session {
			return
		}
		if stopErr := p.stopLocked(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		p.lastErr = err
		monitoring.Logf("pipeline: session %s stopped by driver fault: %v", session, err)
	}()
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{
		Running:        p.running,
		Session:        p.session,
		Driver:         p.driver.Name(),
		WindowSize:     p.settings.WindowSize,
		SampleInterval: p.settings.SampleInterval,
		Pending:        p.buffer.Pending(),
		Producer:       p.producer.Stats(),
		Consumer:       p.consumer.Stats(),
	}
	if p.running {
		s.StartedAt = p.startedAt
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// Close stops the pipeline, waits for pending fault handling and closes the
// buffer. The pipeline cannot be restarted afterwards.
func (p *Pipeline) Close() error {
	p.faultMu.Lock()
	p.closed = true
	p.faultMu.Unlock()

	err := p.Stop()
	p.faults.Wait()
	p.buffer.Close()
	return err
}
