// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package window

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

var (
	// ErrClosed is returned by Push and Take once the buffer is closed.
	ErrClosed = errors.New("window buffer closed")
	// ErrConcurrentConsumer is returned by Take in strict mode when another
	// Take is already outstanding.
	ErrConcurrentConsumer = errors.New("window buffer: concurrent Take")
)

// Buffer collects samples from one producer into windows of a fixed size
// and hands them to one consumer.
//
// Backpressure: at most one completed window waits for the consumer. When
// the next window completes before that one is taken, Push blocks until it
// is taken, the push context ends, or the buffer is closed.
//
// Consumers: by default overlapping Take calls block and are served in
// arrival order. WithStrictConsumer makes an overlapping Take fail with
// ErrConcurrentConsumer instead.
type Buffer struct {
	size   int
	strict bool

	mu      sync.Mutex
	data    []float64 // in-progress window
	start   imu.Sample
	seq     uint64
	gen     uint64
	session string

	ready     chan Window
	takers    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithStrictConsumer makes an overlapping Take fail fast.
func WithStrictConsumer() Option {
	return func(b *Buffer) { b.strict = true }
}

// New returns a buffer producing windows of size samples.
func New(size int, opts ...Option) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	b := &Buffer{
		size:   size,
		data:   make([]float64, 0, size*imu.Channels),
		ready:  make(chan Window, 1),
		takers: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Size returns the number of samples per window.
func (b *Buffer) Size() int { return b.size }

// Pending returns the number of samples in the in-progress window.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) / imu.Channels
}

// Push appends s to the in-progress window. Push must be called by a single
// producer at a time; samples keep the order of the calls.
func (b *Buffer) Push(ctx context.Context, s imu.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}

	b.mu.Lock()
	if len(b.data) == 0 {
		b.start = s
	}
	v := s.Values()
	b.data = append(b.data, v[:]...)
	if len(b.data) < b.size*imu.Channels {
		b.mu.Unlock()
		return nil
	}
	b.seq++
	w := Window{
		Seq:     b.seq,
		Session: b.session,
		Start:   b.start.Time,
		End:     s.Time,
		Data:    b.data,
		gen:     b.gen,
	}
	b.data = make([]float64, 0, b.size*imu.Channels)
	b.mu.Unlock()

	select {
	case b.ready <- w:
		return nil
	default:
	}

	// the previous window has not been taken yet
	select {
	case b.ready <- w:
		return nil
	case <-ctx.Done():
		monitoring.Logf("window: window %d abandoned while waiting for consumer: %v", w.Seq, ctx.Err())
		return ctx.Err()
	case <-b.closed:
		return ErrClosed
	}
}

// Take blocks until a completed window is available and returns it.
// Cancelling ctx interrupts the wait without consuming a window.
func (b *Buffer) Take(ctx context.Context) (Window, error) {
	if b.strict {
		select {
		case b.takers <- struct{}{}:
		default:
			return Window{}, ErrConcurrentConsumer
		}
	} else {
		select {
		case b.takers <- struct{}{}:
		case <-ctx.Done():
			return Window{}, ctx.Err()
		case <-b.closed:
			return Window{}, ErrClosed
		}
	}
	defer func() { <-b.takers }()

	for {
		if err := ctx.Err(); err != nil {
			return Window{}, err
		}
		select {
		case w := <-b.ready:
			if b.stale(w) {
				monitoring.Logf("window: dropping window %d from previous session %q", w.Seq, w.Session)
				continue
			}
			return w, nil
		case <-ctx.Done():
			return Window{}, ctx.Err()
		case <-b.closed:
			return Window{}, ErrClosed
		}
	}
}

func (b *Buffer) stale(w Window) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return w.gen != b.gen
}

// Reset starts a new session: the partial window is discarded, a completed
// window still waiting from the previous session is dropped, and later
// windows are stamped with session.
func (b *Buffer) Reset(session string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.data) / imu.Channels; n > 0 {
		monitoring.Logf("window: discarding partial window (%d/%d samples)", n, b.size)
	}
	b.data = b.data[:0]
	b.gen++
	b.session = session

	select {
	case w := <-b.ready:
		monitoring.Logf("window: dropping untaken window %d from session %q", w.Seq, w.Session)
	default:
	}
}

// Close wakes every blocked Push and Take with ErrClosed. It is safe to call
// more than once.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
