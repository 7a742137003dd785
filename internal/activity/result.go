package activity

import (
	"fmt"
	"time"
)

// Result is the classification of one window.
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`

	// Model output before the threshold policy was applied.
	RawIndex      int     `json:"raw_index"`
	RawConfidence float64 `json:"raw_confidence"`

	WindowSeq   uint64    `json:"window_seq"`
	Session     string    `json:"session"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Time        time.Time `json:"time"`
}

// String renders the human-readable form used by the session log.
func (r Result) String() string {
	return fmt.Sprintf("%s %.3f", r.Label, r.Confidence)
}
