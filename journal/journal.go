// Package journal records collection cycles in a SQLite database so that
// long runs can be inspected after the process exits.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/wbcheck/gc"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

var log = commonlog.GetLogger("wbcheck.journal")

// Entry is one recorded cycle.
type Entry struct {
	Instance   uuid.UUID
	Cycle      uint64
	Reason     string
	LiveBefore int
	LiveAfter  int
	Freed      int
	Zombies    int
	Violations uint64
	Threshold  int
	Duration   time.Duration
	RecordedAt time.Time
}

// Summary aggregates every cycle of one collector instance.
type Summary struct {
	Cycles     int
	Freed      int
	Violations uint64
	TotalPause time.Duration
	MaxPause   time.Duration
}

// Journal appends cycle records for one collector instance.
type Journal struct {
	db       *sql.DB
	path     string
	instance uuid.UUID
	mu       sync.Mutex
}

// Open opens (creating if needed) the journal at path. Records written
// through the returned Journal are tagged with instance.
func Open(path string, instance uuid.UUID) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		reason TEXT NOT NULL,
		live_before INTEGER NOT NULL,
		live_after INTEGER NOT NULL,
		freed INTEGER NOT NULL,
		zombies INTEGER NOT NULL,
		violations INTEGER NOT NULL,
		threshold INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("journal %s opened for %s", path, instance)
	return &Journal{db: db, path: path, instance: instance}, nil
}

// Path returns the database path.
func (j *Journal) Path() string { return j.path }

// Record appends one cycle.
func (j *Journal) Record(info gc.CycleInfo) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return ErrClosed
	}

	_, err := j.db.Exec(`INSERT INTO cycles
		(instance, cycle, reason, live_before, live_after, freed, zombies, violations, threshold, duration_ns, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.instance.String(), int64(info.Cycle), info.Reason,
		info.LiveBefore, info.LiveAfter, info.Freed, info.Zombies,
		int64(info.Violations), info.Threshold,
		int64(info.Duration), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("recording cycle %d: %w", info.Cycle, err)
	}
	return nil
}

// Hook returns a cycle hook that records every cycle and logs failures.
func (j *Journal) Hook() func(gc.CycleInfo) {
	return func(info gc.CycleInfo) {
		if err := j.Record(info); err != nil {
			log.Errorf("%s", err)
		}
	}
}

// Cycles returns every cycle recorded for instance, oldest first.
func (j *Journal) Cycles(instance uuid.UUID) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.Query(`SELECT instance, cycle, reason, live_before, live_after, freed, zombies,
		violations, threshold, duration_ns, recorded_at
		FROM cycles WHERE instance = ? ORDER BY id`, instance.String())
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                      Entry
			inst                   string
			cycle, violations      int64
			durationNS, recordedAt int64
		)
		if err := rows.Scan(&inst, &cycle, &e.Reason, &e.LiveBefore, &e.LiveAfter, &e.Freed,
			&e.Zombies, &violations, &e.Threshold, &durationNS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		if e.Instance, err = uuid.Parse(inst); err != nil {
			return nil, fmt.Errorf("bad instance id %q: %w", inst, err)
		}
		e.Cycle = uint64(cycle)
		e.Violations = uint64(violations)
		e.Duration = time.Duration(durationNS)
		e.RecordedAt = time.Unix(0, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Summarize aggregates every cycle recorded for instance.
func (j *Journal) Summarize(instance uuid.UUID) (Summary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return Summary{}, ErrClosed
	}

	var (
		s                    Summary
		violations           int64
		totalPause, maxPause int64
	)
	err := j.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(freed), 0), COALESCE(SUM(violations), 0),
		COALESCE(SUM(duration_ns), 0), COALESCE(MAX(duration_ns), 0)
		FROM cycles WHERE instance = ?`, instance.String()).
		Scan(&s.Cycles, &s.Freed, &violations, &totalPause, &maxPause)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing cycles: %w", err)
	}
	s.Violations = uint64(violations)
	s.TotalPause = time.Duration(totalPause)
	s.MaxPause = time.Duration(maxPause)
	return s, nil
}

// Instances lists every collector instance with recorded cycles.
func (j *Journal) Instances() ([]uuid.UUID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	rows, err := j.db.Query(`SELECT instance FROM cycles GROUP BY instance ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("bad instance id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
