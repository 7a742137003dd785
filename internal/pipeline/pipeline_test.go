// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/classify"
	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/model"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
	"github.com/relabs-tech/activity_recognizer/internal/sensors"
	"github.com/relabs-tech/activity_recognizer/internal/window"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// fakeDriver hands its handler to the test, which plays the sensor.
type fakeDriver struct {
	mu      sync.Mutex
	h       sensors.Handler
	subErr  error
	subs    int
	unsubs  int
	lastInt time.Duration
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Subscribe(interval time.Duration, h sensors.Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subErr != nil {
		return d.subErr
	}
	d.h = h
	d.subs++
	d.lastInt = interval
	return nil
}

func (d *fakeDriver) Unsubscribe() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.h != nil {
		d.unsubs++
	}
	d.h = nil
	return nil
}

func (d *fakeDriver) handler(t *testing.T) sensors.Handler {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotNil(t, d.h, "driver not subscribed")
	return d.h
}

// feed plays n gyro+accel event pairs whose accel X encodes the index.
func feed(h sensors.Handler, from, n int) {
	for i := from; i < from+n; i++ {
		ts := time.Unix(0, int64(i)*int64(10*time.Millisecond))
		h.OnGyro(imu.Reading{Time: ts})
		h.OnAccel(imu.Reading{X: float64(i), Z: 9.8, Time: ts})
	}
}

// recordingClassifier records every window it sees.
type recordingClassifier struct {
	mu      sync.Mutex
	windows []window.Window
	seen    chan window.Window
	block   chan struct{} // if set, Classify waits on it or ctx
	panics  bool
	err     error
}

func newRecordingClassifier() *recordingClassifier {
	return &recordingClassifier{seen: make(chan window.Window, 16)}
}

func (c *recordingClassifier) Classify(ctx context.Context, w window.Window) (activity.Result, error) {
	c.mu.Lock()
	c.windows = append(c.windows, w)
	c.mu.Unlock()
	c.seen <- w
	if c.panics {
		panic("model blew up")
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return activity.Result{}, ctx.Err()
		}
	}
	return activity.Result{Label: activity.Standing, Confidence: 1, WindowSeq: w.Seq}, c.err
}

func (c *recordingClassifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func newTestPipeline(t *testing.T, size int, c Classifier) (*Pipeline, *fakeDriver) {
	t.Helper()
	d := &fakeDriver{}
	p, err := New(d, c, Settings{WindowSize: size, SampleInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, d
}

func waitWindow(t *testing.T, c *recordingClassifier) window.Window {
	t.Helper()
	select {
	case w := <-c.seen:
		return w
	case <-time.After(time.Second):
		t.Fatal("no window classified")
		return window.Window{}
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(&fakeDriver{}, newRecordingClassifier(), Settings{WindowSize: 0, SampleInterval: time.Millisecond})
	assert.Error(t, err)
	_, err = New(&fakeDriver{}, newRecordingClassifier(), Settings{WindowSize: 10})
	assert.Error(t, err)
}

func TestProducer_JoinPolicy(t *testing.T) {
	buf, err := window.New(2)
	require.NoError(t, err)
	d := &fakeDriver{}
	p := NewProducer(d, buf, nil)
	require.NoError(t, p.Start(2, 10*time.Millisecond))
	h := d.handler(t)

	h.OnAccel(imu.Reading{X: 1}) // no gyro yet
	assert.Equal(t, uint64(1), p.Stats().Skipped)
	assert.Equal(t, 0, buf.Pending())

	h.OnGyro(imu.Reading{X: 0.1})
	h.OnGyro(imu.Reading{X: 0.2}) // only the latest counts
	assert.Equal(t, 0, buf.Pending(), "gyro events never emit samples")
	h.OnAccel(imu.Reading{X: 2, Time: time.Unix(2, 0)})
	h.OnAccel(imu.Reading{X: 3, Time: time.Unix(3, 0)})

	w, err := buf.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 0, 0.2, 0, 0}, w.Row(0))
	assert.Equal(t, []float64{3, 0, 0, 0.2, 0, 0}, w.Row(1))
	assert.Equal(t, p.Session(), w.Session)
	assert.Equal(t, uint64(2), p.Stats().Samples)
	require.NoError(t, p.Stop())
}

func TestProducer_DriverEventPair(t *testing.T) {
	buf, err := window.New(1)
	require.NoError(t, err)
	d := &fakeDriver{}
	p := NewProducer(d, buf, nil)
	require.NoError(t, p.Start(1, 10*time.Millisecond))

	d.handler(t).(sensors.PairHandler).OnDriverEvent(imu.Reading{Z: 9.8}, imu.Reading{Z: 0.5})
	w, err := buf.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 9.8, 0, 0, 0.5}, w.Row(0))
	require.NoError(t, p.Stop())
}

func TestProducer_StartStopIdempotent(t *testing.T) {
	buf, err := window.New(4)
	require.NoError(t, err)
	d := &fakeDriver{}
	p := NewProducer(d, buf, nil)

	assert.NoError(t, p.Stop(), "stop before start")
	require.NoError(t, p.Start(4, 5*time.Millisecond))
	first := p.Session()
	require.NoError(t, p.Start(4, 5*time.Millisecond))
	assert.Equal(t, first, p.Session(), "second Start is a no-op")
	assert.Equal(t, 1, d.subs)
	assert.Equal(t, 5*time.Millisecond, d.lastInt)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Equal(t, 1, d.unsubs)
	assert.False(t, p.Running())

	assert.Error(t, p.Start(5, 5*time.Millisecond), "window size must match the buffer")
}

func TestProducer_SubscribeFailure(t *testing.T) {
	buf, err := window.New(4)
	require.NoError(t, err)
	d := &fakeDriver{subErr: errors.New("no sensor")}
	p := NewProducer(d, buf, nil)

	err = p.Start(4, 10*time.Millisecond)
	assert.ErrorIs(t, err, sensors.ErrDriverUnavailable)
	assert.False(t, p.Running())
}

func TestProducer_EventsAfterStopAreIgnored(t *testing.T) {
	buf, err := window.New(4)
	require.NoError(t, err)
	d := &fakeDriver{}
	p := NewProducer(d, buf, nil)
	require.NoError(t, p.Start(4, 10*time.Millisecond))
	h := d.handler(t)
	require.NoError(t, p.Stop())

	feed(h, 0, 10)
	assert.Equal(t, 0, buf.Pending())
	assert.Equal(t, uint64(0), p.Stats().Samples)
}

func TestPipeline_NoWindowFor199Samples(t *testing.T) {
	c := newRecordingClassifier()
	p, d := newTestPipeline(t, 200, c)
	require.NoError(t, p.Start())

	feed(d.handler(t), 0, 199)
	assert.Equal(t, 199, p.Status().Pending)
	require.NoError(t, p.Stop())

	assert.Equal(t, 0, c.count(), "a partial window is never classified")
	assert.Equal(t, 0, p.Status().Pending)
}

func TestPipeline_ClassifiesEveryCompleteWindowInOrder(t *testing.T) {
	c := newRecordingClassifier()
	p, d := newTestPipeline(t, 50, c)
	require.NoError(t, p.Start())

	go feed(d.handler(t), 0, 150)
	for k := 0; k < 3; k++ {
		w := waitWindow(t, c)
		assert.Equal(t, uint64(k+1), w.Seq)
		require.Equal(t, 50, w.Len())
		for i := 0; i < 50; i++ {
			assert.Equal(t, float64(k*50+i), w.Row(i)[0])
		}
	}
	require.NoError(t, p.Stop())
	assert.Equal(t, uint64(3), p.Status().Consumer.Windows)
}

func TestPipeline_StopWhileConsumerWaitsIsPrompt(t *testing.T) {
	p, _ := newTestPipeline(t, 200, newRecordingClassifier())
	require.NoError(t, p.Start())
	time.Sleep(10 * time.Millisecond) // consumer is blocked in Take

	start := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, p.Status().Running)
}

func TestPipeline_StopReleasesBlockedProducerAndClassifier(t *testing.T) {
	c := newRecordingClassifier()
	c.block = make(chan struct{}) // never released
	p, d := newTestPipeline(t, 2, c)
	require.NoError(t, p.Start())

	h := d.handler(t)
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		feed(h, 0, 20) // far more than the buffer can hold
	}()
	waitWindow(t, c)

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop() }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop blocked behind backpressure")
	}
	select {
	case <-fed:
	case <-time.After(time.Second):
		t.Fatal("producer callbacks still blocked after Stop")
	}
	assert.Positive(t, p.Status().Producer.Dropped)
}

func TestPipeline_StopDiscardsUntakenWindow(t *testing.T) {
	c := newRecordingClassifier()
	c.block = make(chan struct{}) // never released
	p, d := newTestPipeline(t, 2, c)
	require.NoError(t, p.Start())

	h := d.handler(t)
	feed(h, 0, 2)
	waitWindow(t, c)
	feed(h, 2, 2) // completes a second window while the first is classified

	require.NoError(t, p.Stop())
	require.NoError(t, p.Start())
	select {
	case w := <-c.seen:
		t.Fatalf("window %d classified after Stop", w.Seq)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, c.count())
}

func TestPipeline_RestartDoesNotCarrySamples(t *testing.T) {
	c := newRecordingClassifier()
	p, d := newTestPipeline(t, 200, c)

	require.NoError(t, p.Start())
	firstSession := p.Status().Session
	feed(d.handler(t), 0, 150)
	require.NoError(t, p.Stop())

	require.NoError(t, p.Start())
	assert.NotEqual(t, firstSession, p.Status().Session)
	feed(d.handler(t), 1000, 50)
	assert.Equal(t, 0, c.count(), "150 + 50 samples across a restart is not a window")

	go feed(d.handler(t), 1050, 150)
	w := waitWindow(t, c)
	assert.Equal(t, 1000.0, w.Row(0)[0])
	assert.Equal(t, p.Status().Session, w.Session)
}

func TestPipeline_Toggle(t *testing.T) {
	p, _ := newTestPipeline(t, 10, newRecordingClassifier())

	running, err := p.Toggle()
	require.NoError(t, err)
	assert.True(t, running)
	assert.True(t, p.Status().Running)

	running, err = p.Toggle()
	require.NoError(t, err)
	assert.False(t, running)
	assert.False(t, p.Status().Running)
}

func TestPipeline_StartFailureIsReported(t *testing.T) {
	p, d := newTestPipeline(t, 10, newRecordingClassifier())
	d.subErr = errors.New("sensor missing")

	err := p.Start()
	assert.ErrorIs(t, err, sensors.ErrDriverUnavailable)
	st := p.Status()
	assert.False(t, st.Running)
	assert.Contains(t, st.LastError, "sensor missing")
}

func TestPipeline_DriverFaultStopsSession(t *testing.T) {
	p, d := newTestPipeline(t, 10, newRecordingClassifier())
	require.NoError(t, p.Start())

	d.handler(t).OnError(errors.New("bus error"))
	assert.Eventually(t, func() bool { return !p.Status().Running }, time.Second, 5*time.Millisecond)
	assert.Contains(t, p.Status().LastError, "bus error")
	assert.Equal(t, 1, d.unsubs)

	require.NoError(t, p.Start(), "a faulted pipeline can be restarted")
	assert.Empty(t, p.Status().LastError)
}

func TestPipeline_FaultsRacingCloseAreSafe(t *testing.T) {
	p, _ := newTestPipeline(t, 10, newRecordingClassifier())
	require.NoError(t, p.Start())
	session := p.Status().Session

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.fault(session, errors.New("bus error"))
			}
		}()
	}
	require.NoError(t, p.Close())
	wg.Wait()
	assert.False(t, p.Status().Running)

	// faults after Close are ignored
	p.fault(session, errors.New("late fault"))
	assert.NotContains(t, p.Status().LastError, "late fault")
}

func TestConsumer_SurvivesFailuresAndPanics(t *testing.T) {
	c := newRecordingClassifier()
	c.panics = true
	p, d := newTestPipeline(t, 1, c)
	require.NoError(t, p.Start())

	go feed(d.handler(t), 0, 2)
	waitWindow(t, c)
	waitWindow(t, c)
	assert.Eventually(t, func() bool { return p.Status().Consumer.Failures == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, p.Status().Running)
}

func TestPipeline_EndToEndThresholdPolicy(t *testing.T) {
	tests := []struct {
		name  string
		class int
		conf  float64
		want  activity.Label
		wconf float64
	}{
		{"confident", 0, 0.9, activity.Standing, 0.9},
		{"below threshold", 3, 0.3, activity.Unknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows, cols int
			stub := model.Func(func(_ context.Context, x *mat.Dense) (int, float64, error) {
				rows, cols = x.Dims()
				return tt.class, tt.conf, nil
			})
			out := make(chan activity.Result, 1)
			d := &fakeDriver{}
			p, err := New(d, classify.New(stub, activity.LabelSet11, out, classify.WithWindowSize(200)),
				Settings{WindowSize: 200, SampleInterval: 10 * time.Millisecond})
			require.NoError(t, err)
			defer p.Close()
			require.NoError(t, p.Start())

			h := d.handler(t)
			go func() {
				for i := 0; i < 200; i++ {
					h.OnGyro(imu.Reading{})
					h.OnAccel(imu.Reading{Z: 9.8})
				}
			}()

			select {
			case res := <-out:
				assert.Equal(t, tt.want, res.Label)
				assert.Equal(t, tt.wconf, res.Confidence)
				assert.Equal(t, 200, rows)
				assert.Equal(t, 6, cols)
			case <-time.After(2 * time.Second):
				t.Fatal("no result")
			}
		})
	}
}
