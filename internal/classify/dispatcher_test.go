// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classify

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/model"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
	"github.com/relabs-tech/activity_recognizer/internal/window"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func stub(class int, conf float64) model.Func {
	return func(context.Context, *mat.Dense) (int, float64, error) { return class, conf, nil }
}

// restingWindow pushes n samples with accel (0,0,9.8) and gyro (0,0,0)
// through a real buffer.
func restingWindow(t *testing.T, n int) window.Window {
	t.Helper()
	b, err := window.New(n)
	require.NoError(t, err)
	b.Reset("session-1")
	go func() {
		for i := 0; i < n; i++ {
			s := imu.Join(imu.Reading{Z: 9.8, Time: time.Unix(0, int64(i)*int64(10*time.Millisecond))}, imu.Reading{})
			if err := b.Push(context.Background(), s); err != nil {
				return
			}
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w, err := b.Take(ctx)
	require.NoError(t, err)
	return w
}

func TestClassify_AcceptedResult(t *testing.T) {
	w := restingWindow(t, 200)
	out := make(chan activity.Result, 1)
	d := New(stub(0, 0.9), activity.LabelSet11, out, WithWindowSize(200))

	res, err := d.Classify(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, activity.Standing, res.Label)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, w.Seq, res.WindowSeq)
	assert.Equal(t, "session-1", res.Session)

	select {
	case emitted := <-out:
		assert.Equal(t, res, emitted)
	default:
		t.Fatal("no result emitted")
	}
	assert.Equal(t, Stats{Classified: 1}, d.Stats())
}

func TestClassify_BelowThresholdIsUnknown(t *testing.T) {
	w := restingWindow(t, 200)
	out := make(chan activity.Result, 1)
	d := New(stub(3, 0.3), activity.LabelSet11, out)

	res, err := d.Classify(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, activity.Unknown, res.Label)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 3, res.RawIndex)
	assert.Equal(t, 0.3, res.RawConfidence)
	assert.Len(t, out, 1)
	assert.Equal(t, uint64(1), d.Stats().Unknown)
}

func TestClassify_TensorShape(t *testing.T) {
	w := restingWindow(t, 200)
	var rows, cols int
	var az float64
	d := New(model.Func(func(_ context.Context, x *mat.Dense) (int, float64, error) {
		rows, cols = x.Dims()
		az = x.At(199, 2)
		return 0, 1, nil
	}), activity.LabelSet11, nil)

	_, err := d.Classify(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 200, rows)
	assert.Equal(t, 6, cols)
	assert.Equal(t, 9.8, az)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		class     int
		conf      float64
		threshold float64
		label     activity.Label
		wantConf  float64
	}{
		{"accepted", 7, 0.75, 0.5, activity.Walking, 0.75},
		{"exactly threshold", 1, 0.5, 0.5, activity.Sitting, 0.5},
		{"below threshold", 7, 0.49, 0.5, activity.Unknown, 0},
		{"index out of range", 42, 0.99, 0.5, activity.Unknown, 0},
		{"negative index", -1, 0.99, 0.5, activity.Unknown, 0},
		{"confidence above one", 0, 1.2, 0.5, activity.Unknown, 0},
		{"nan confidence", 0, math.NaN(), 0.5, activity.Unknown, 0},
		{"custom threshold", 10, 0.6, 0.8, activity.Unknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Apply(activity.LabelSet11, tt.class, tt.conf, tt.threshold)
			assert.Equal(t, tt.label, res.Label)
			assert.Equal(t, tt.wantConf, res.Confidence)
			assert.Equal(t, tt.class, res.RawIndex)
		})
	}
}

func TestApply_BelowThresholdForEveryIndex(t *testing.T) {
	for class := -2; class < 25; class++ {
		res := Apply(activity.LabelSet19, class, 0.4999, DefaultConfidenceThreshold)
		assert.Equal(t, activity.Unknown, res.Label, "class %d", class)
		assert.Equal(t, 0.0, res.Confidence, "class %d", class)
	}
}

func TestClassify_InferenceFailure(t *testing.T) {
	boom := errors.New("interpreter crashed")
	out := make(chan activity.Result, 1)
	d := New(model.Func(func(context.Context, *mat.Dense) (int, float64, error) {
		return 0, 0, boom
	}), activity.LabelSet11, out)

	_, err := d.Classify(context.Background(), restingWindow(t, 10))
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, out, 0, "a failed window emits no result")
	assert.Equal(t, uint64(1), d.Stats().Failed)
}

func TestClassify_RejectsWrongLength(t *testing.T) {
	d := New(stub(0, 1), activity.LabelSet11, nil, WithWindowSize(200))
	_, err := d.Classify(context.Background(), restingWindow(t, 199))
	assert.ErrorIs(t, err, ErrInferenceFailure)

	_, err = d.Classify(context.Background(), window.Window{})
	assert.ErrorIs(t, err, ErrInferenceFailure)
}

func TestClassify_InferenceTimeout(t *testing.T) {
	hang := model.Func(func(ctx context.Context, _ *mat.Dense) (int, float64, error) {
		<-ctx.Done()
		return 0, 0, ctx.Err()
	})
	d := New(hang, activity.LabelSet11, nil, WithInferenceTimeout(20*time.Millisecond))

	_, err := d.Classify(context.Background(), restingWindow(t, 4))
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingObserver struct{ seen []uint64 }

func (r *recordingObserver) ObserveWindow(w window.Window) error {
	r.seen = append(r.seen, w.Seq)
	return errors.New("disk full")
}

func TestClassify_ObserverFailureIsNotFatal(t *testing.T) {
	obs := &recordingObserver{}
	d := New(stub(0, 0.9), activity.LabelSet11, nil, WithWindowObserver(obs), WithThreshold(0.8))
	assert.Equal(t, 0.8, d.Threshold())

	res, err := d.Classify(context.Background(), restingWindow(t, 4))
	require.NoError(t, err)
	assert.Equal(t, activity.Standing, res.Label)
	assert.Equal(t, []uint64{1}, obs.seen)
}

func TestClassify_EmitHonoursContext(t *testing.T) {
	out := make(chan activity.Result) // nobody reads
	d := New(stub(0, 0.9), activity.LabelSet11, out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Classify(ctx, restingWindow(t, 4))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
