// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package model provides the inference collaborator that turns a window
// tensor into a class index and a confidence.
package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrModelLoad reports a model artifact that could not be loaded.
	ErrModelLoad = errors.New("model load failed")
	// ErrClosed is returned by Infer after Close.
	ErrClosed = errors.New("model closed")
)

// Inferrer runs a model over an N×6 window tensor.
type Inferrer interface {
	// Infer returns the most likely class index and its confidence in [0,1].
	Infer(ctx context.Context, x *mat.Dense) (class int, confidence float64, err error)
	// Close releases the model.
	Close() error
}

// Func adapts a function to Inferrer. Close is a no-op.
type Func func(ctx context.Context, x *mat.Dense) (int, float64, error)

func (f Func) Infer(ctx context.Context, x *mat.Dense) (int, float64, error) {
	return f(ctx, x)
}

func (f Func) Close() error { return nil }

// Bounded waits at most Timeout for Inner. A call that times out is left to
// finish in the background; its result is discarded.
type Bounded struct {
	Inner   Inferrer
	Timeout time.Duration
}

type inferResult struct {
	class int
	conf  float64
	err   error
}

func (b Bounded) Infer(ctx context.Context, x *mat.Dense) (int, float64, error) {
	if b.Timeout <= 0 {
		return b.Inner.Infer(ctx, x)
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	done := make(chan inferResult, 1)
	go func() {
		c, p, err := b.Inner.Infer(ctx, x)
		done <- inferResult{c, p, err}
	}()

	select {
	case r := <-done:
		return r.class, r.conf, r.err
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("inference did not finish within %v: %w", b.Timeout, ctx.Err())
	}
}

func (b Bounded) Close() error { return b.Inner.Close() }
