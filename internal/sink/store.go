package sink

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
)

// Store keeps every result in a sqlite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the results database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db %s: %w", path, err)
	}
	// one writer (the hub) and short API reads
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			window_seq INTEGER NOT NULL,
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			raw_index INTEGER NOT NULL,
			raw_confidence REAL NOT NULL,
			window_start_ns INTEGER NOT NULL,
			window_end_ns INTEGER NOT NULL,
			classified_at_ns INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_results_session ON results (session);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "store" }

func (s *Store) Emit(r activity.Result) error {
	_, err := s.db.Exec(`INSERT INTO results
		(session, window_seq, label, confidence, raw_index, raw_confidence, window_start_ns, window_end_ns, classified_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Session, int64(r.WindowSeq), string(r.Label), r.Confidence, r.RawIndex, r.RawConfidence,
		unixNano(r.WindowStart), unixNano(r.WindowEnd), unixNano(r.Time))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *Store) Recent(limit int) ([]activity.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT session, window_seq, label, confidence, raw_index, raw_confidence,
			window_start_ns, window_end_ns, classified_at_ns
		FROM results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []activity.Result
	for rows.Next() {
		var (
			r                 activity.Result
			seq               int64
			label             string
			start, end, taken int64
		)
		if err := rows.Scan(&r.Session, &seq, &label, &r.Confidence, &r.RawIndex, &r.RawConfidence, &start, &end, &taken); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.WindowSeq = uint64(seq)
		r.Label = activity.Label(label)
		r.WindowStart = fromUnixNano(start)
		r.WindowEnd = fromUnixNano(end)
		r.Time = fromUnixNano(taken)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByLabel returns the number of stored results per label for a session.
func (s *Store) CountByLabel(session string) (map[activity.Label]int, error) {
	rows, err := s.db.Query(`SELECT label, COUNT(*) FROM results WHERE session = ? GROUP BY label`, session)
	if err != nil {
		return nil, fmt.Errorf("query label counts: %w", err)
	}
	defer rows.Close()

	out := map[activity.Label]int{}
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		out[activity.Label(label)] = n
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
