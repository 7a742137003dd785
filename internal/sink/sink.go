// Package sink delivers classification results to their consumers: the
// session log file, the results database, MQTT, websocket clients and the
// OLED display.
package sink

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

// Sink receives every result. Emit is called from the hub goroutine only.
type Sink interface {
	Name() string
	Emit(r activity.Result) error
}

// Hub fans results out to its sinks. A failing sink is logged and skipped;
// it never stops delivery to the others.
type Hub struct {
	sinks []Sink

	mu       sync.RWMutex
	latest   activity.Result
	have     bool
	failures map[string]uint64
}

// NewHub creates a hub over sinks.
func NewHub(sinks ...Sink) *Hub {
	return &Hub{sinks: sinks, failures: map[string]uint64{}}
}

// Add registers another sink. It must be called before Run.
func (h *Hub) Add(s Sink) {
	h.sinks = append(h.sinks, s)
}

// Run delivers results from in until ctx is cancelled or in is closed.
func (h *Hub) Run(ctx context.Context, in <-chan activity.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			h.dispatch(r)
		}
	}
}

func (h *Hub) dispatch(r activity.Result) {
	h.mu.Lock()
	h.latest = r
	h.have = true
	h.mu.Unlock()

	for _, s := range h.sinks {
		if err := s.Emit(r); err != nil {
			monitoring.Logf("sink: %s: %v", s.Name(), err)
			h.mu.Lock()
			h.failures[s.Name()]++
			h.mu.Unlock()
		}
	}
}

// Latest returns the most recent result, if any.
func (h *Hub) Latest() (activity.Result, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.have
}

// Failures returns the number of failed emits per sink name.
func (h *Hub) Failures() map[string]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]uint64, len(h.failures))
	for k, v := range h.failures {
		out[k] = v
	}
	return out
}

// Close closes every sink that holds resources.
func (h *Hub) Close() error {
	var errs []error
	for _, s := range h.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
