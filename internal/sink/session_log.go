package sink

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
)

const sessionTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// SessionLog appends one line per result to a text file:
//
//	2026-01-02T15:04:05.000+01:00 walking 0.873
type SessionLog struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenSessionLog opens path for appending, creating it if needed.
func OpenSessionLog(path string) (*SessionLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}
	return &SessionLog{path: path, f: f}, nil
}

func (s *SessionLog) Name() string { return "session-log" }

func (s *SessionLog) Emit(r activity.Result) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("session log %s is closed", s.path)
	}
	_, err := fmt.Fprintf(s.f, "%s %s %.3f\n", t.Format(sessionTimeLayout), r.Label, r.Confidence)
	return err
}

func (s *SessionLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
