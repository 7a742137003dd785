// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package classify turns completed windows into activity results.
package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/model"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
	"github.com/relabs-tech/activity_recognizer/internal/window"
)

// DefaultConfidenceThreshold is the lowest raw confidence accepted for a
// non-Unknown label.
const DefaultConfidenceThreshold = 0.5

// ErrInferenceFailure wraps every failed classification of a single window.
var ErrInferenceFailure = errors.New("inference failed")

// WindowObserver sees every window before it is classified.
type WindowObserver interface {
	ObserveWindow(w window.Window) error
}

// Stats counts dispatcher activity.
type Stats struct {
	Classified uint64 `json:"classified"`
	Unknown    uint64 `json:"unknown"`
	Failed     uint64 `json:"failed"`
}

// Dispatcher reshapes windows, runs the model, applies the confidence
// policy and emits one result per window on its output channel.
type Dispatcher struct {
	model      model.Inferrer
	labels     activity.LabelSet
	threshold  float64
	windowSize int
	timeout    time.Duration
	observer   WindowObserver
	out        chan<- activity.Result
	now        func() time.Time

	classified atomic.Uint64
	unknown    atomic.Uint64
	failed     atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithThreshold overrides DefaultConfidenceThreshold.
func WithThreshold(t float64) Option {
	return func(d *Dispatcher) { d.threshold = t }
}

// WithWindowSize rejects windows whose length is not n.
func WithWindowSize(n int) Option {
	return func(d *Dispatcher) { d.windowSize = n }
}

// WithInferenceTimeout bounds each model call.
func WithInferenceTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithWindowObserver registers an observer for every window.
func WithWindowObserver(o WindowObserver) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New returns a dispatcher that emits results on out. A nil out discards
// results after returning them.
func New(m model.Inferrer, labels activity.LabelSet, out chan<- activity.Result, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		model:     m,
		labels:    labels,
		threshold: DefaultConfidenceThreshold,
		out:       out,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.timeout > 0 {
		d.model = model.Bounded{Inner: m, Timeout: d.timeout}
	}
	return d
}

// Threshold returns the configured confidence threshold.
func (d *Dispatcher) Threshold() float64 { return d.threshold }

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Classified: d.classified.Load(),
		Unknown:    d.unknown.Load(),
		Failed:     d.failed.Load(),
	}
}

// Tensor reshapes the flattened window into an N×6 matrix. The matrix owns
// a copy of the data.
func Tensor(w window.Window) *mat.Dense {
	data := make([]float64, len(w.Data))
	copy(data, w.Data)
	return mat.NewDense(w.Len(), imu.Channels, data)
}

// Classify runs the model over w and emits the policy-filtered result.
// Inference errors are returned wrapped in ErrInferenceFailure and are not
// retried.
func (d *Dispatcher) Classify(ctx context.Context, w window.Window) (activity.Result, error) {
	if w.Len() == 0 || len(w.Data)%imu.Channels != 0 || (d.windowSize > 0 && w.Len() != d.windowSize) {
		d.failed.Add(1)
		return activity.Result{}, fmt.Errorf("%w: window %d has %d values, want %d×%d",
			ErrInferenceFailure, w.Seq, len(w.Data), d.windowSize, imu.Channels)
	}

	if d.observer != nil {
		if err := d.observer.ObserveWindow(w); err != nil {
			monitoring.Logf("classify: window observer: %v", err)
		}
	}

	class, conf, err := d.model.Infer(ctx, Tensor(w))
	if err != nil {
		d.failed.Add(1)
		return activity.Result{}, fmt.Errorf("%w: window %d: %w", ErrInferenceFailure, w.Seq, err)
	}

	res := Apply(d.labels, class, conf, d.threshold)
	res.WindowSeq = w.Seq
	res.Session = w.Session
	res.WindowStart = w.Start
	res.WindowEnd = w.End
	res.Time = d.now()

	d.classified.Add(1)
	if res.Label == activity.Unknown {
		d.unknown.Add(1)
	}

	if d.out != nil {
		select {
		case d.out <- res:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
	return res, nil
}

// Apply maps a raw model output through labels and the threshold policy.
// Below-threshold, out-of-range or unmapped outputs become Unknown with
// zero confidence; accepted outputs keep the raw confidence unchanged.
func Apply(labels activity.LabelSet, class int, conf, threshold float64) activity.Result {
	res := activity.Result{
		Label:         activity.Unknown,
		RawIndex:      class,
		RawConfidence: conf,
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 || conf < threshold {
		return res
	}
	label, ok := labels.Lookup(class)
	if !ok {
		return res
	}
	res.Label = label
	res.Confidence = conf
	return res
}
