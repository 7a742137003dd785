// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
	"github.com/relabs-tech/activity_recognizer/internal/window"
)

// Classifier turns one window into a result.
type Classifier interface {
	Classify(ctx context.Context, w window.Window) (activity.Result, error)
}

// ConsumerStats counts windows handled by a Consumer.
type ConsumerStats struct {
	Windows  uint64 `json:"windows"`
	Failures uint64 `json:"failures"`
}

// Consumer takes completed windows from the buffer and classifies them one
// at a time.
type Consumer struct {
	buffer     *window.Buffer
	classifier Classifier

	windows  atomic.Uint64
	failures atomic.Uint64
}

// NewConsumer creates a consumer reading from buffer.
func NewConsumer(buffer *window.Buffer, classifier Classifier) *Consumer {
	return &Consumer{buffer: buffer, classifier: classifier}
}

// Run classifies windows until ctx is cancelled or the buffer is closed.
// A failed window is logged and counted; the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		w, err := c.buffer.Take(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, window.ErrClosed) {
				return nil
			}
			return fmt.Errorf("consumer: take: %w", err)
		}
		c.windows.Add(1)
		if err := c.classify(ctx, w); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.failures.Add(1)
			monitoring.Logf("consumer: window %d: %v", w.Seq, err)
		}
	}
}

func (c *Consumer) classify(ctx context.Context, w window.Window) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	_, err = c.classifier.Classify(ctx, w)
	return err
}

// Stats returns a snapshot of the counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Windows:  c.windows.Load(),
		Failures: c.failures.Load(),
	}
}
