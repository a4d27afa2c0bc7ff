// Package signalqueue implements the durable FIFO of pending signals
// extracted from session transcripts (spec §4.L). It is grounded on the
// teacher's internal/store/tool_store.go: a dedicated SQLite database,
// separate from the graph store, so an unrelated schema doesn't bloat
// query plans over decisions/outcomes. Unlike the graph store it uses
// modernc.org/sqlite (pure Go), so the queue itself needs no CGO.
package signalqueue

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/logging"
)

// Level is the heuristic extractor's confidence bucket for a signal hit.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
)

// Status tracks whether a signal has been folded into a Decision yet.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExtracted Status = "extracted"
)

// Signal is one heuristic hit awaiting extraction into a Decision.
type Signal struct {
	ID                  string
	Timestamp           int64
	SignalType          Level
	Confidence          float64
	Module              string
	RawText             string
	Status              Status
	ExtractedDecisionID string
}

// Queue is the durable FIFO store.
type Queue struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes (creating if needed) the signal queue database at path.
func Open(path string) (*Queue, error) {
	timer := logging.StartTimer(logging.CategorySignalQueue, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create signal queue directory %s", dir)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "open signal queue database %s", path)
	}
	db.SetMaxOpenConns(1)

	q := &Queue{db: db, dbPath: path}
	if err := q.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS signal_queue (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		signal_type TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		module TEXT NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		extracted_decision_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_signal_queue_status ON signal_queue(status);
	CREATE INDEX IF NOT EXISTS idx_signal_queue_timestamp ON signal_queue(timestamp);
	`
	_, err := q.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Save persists a new signal. Idempotent on id: re-saving the same id is
// a no-op update rather than a duplicate row (§4.L / §8 idempotency).
func (q *Queue) Save(s Signal) error {
	timer := logging.StartTimer(logging.CategorySignalQueue, "Save")
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	if s.Status == "" {
		s.Status = StatusPending
	}
	_, err := q.db.Exec(
		`INSERT INTO signal_queue (id, timestamp, signal_type, confidence, module, raw_text, status, extracted_decision_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			timestamp=excluded.timestamp, signal_type=excluded.signal_type, confidence=excluded.confidence,
			module=excluded.module, raw_text=excluded.raw_text`,
		s.ID, s.Timestamp, string(s.SignalType), s.Confidence, s.Module, s.RawText, string(s.Status), s.ExtractedDecisionID,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "save signal %s", s.ID)
	}
	return nil
}

// GetPending returns signals still awaiting extraction, oldest first
// (FIFO order per §4.L).
func (q *Queue) GetPending() ([]Signal, error) {
	timer := logging.StartTimer(logging.CategorySignalQueue, "GetPending")
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	rows, err := q.db.Query(
		`SELECT id, timestamp, signal_type, confidence, module, raw_text, status, extracted_decision_id
		 FROM signal_queue WHERE status = ? ORDER BY timestamp ASC`, string(StatusPending))
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "query pending signals")
	}
	defer rows.Close()
	return scanSignals(rows)
}

// MarkExtracted transitions a signal to extracted once it has been
// folded into decisionID (§4.L). Re-marking an already-extracted signal
// with the same decisionID is idempotent; a different decisionID is a
// conflict.
func (q *Queue) MarkExtracted(signalID, decisionID string) error {
	timer := logging.StartTimer(logging.CategorySignalQueue, "MarkExtracted")
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	var currentStatus, currentDecision string
	err := q.db.QueryRow(`SELECT status, extracted_decision_id FROM signal_queue WHERE id = ?`, signalID).
		Scan(&currentStatus, &currentDecision)
	if err == sql.ErrNoRows {
		return apperr.New(apperr.NotFound, "signal %s not found", signalID)
	}
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "look up signal %s", signalID)
	}
	if currentStatus == string(StatusExtracted) && currentDecision != decisionID {
		return apperr.New(apperr.Conflict, "signal %s already extracted into %s, cannot reassign to %s", signalID, currentDecision, decisionID)
	}

	_, err = q.db.Exec(
		`UPDATE signal_queue SET status = ?, extracted_decision_id = ? WHERE id = ?`,
		string(StatusExtracted), decisionID, signalID,
	)
	if err != nil {
		return apperr.Wrap(apperr.PermanentBackend, err, "mark signal %s extracted", signalID)
	}
	return nil
}

// GetHistory returns the most recent limit signals regardless of status,
// newest first.
func (q *Queue) GetHistory(limit int) ([]Signal, error) {
	timer := logging.StartTimer(logging.CategorySignalQueue, "GetHistory")
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(
		`SELECT id, timestamp, signal_type, confidence, module, raw_text, status, extracted_decision_id
		 FROM signal_queue ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.PermanentBackend, err, "query signal history")
	}
	defer rows.Close()
	return scanSignals(rows)
}

// Depth reports the number of pending signals.
func (q *Queue) Depth() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM signal_queue WHERE status = ?`, string(StatusPending)).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.PermanentBackend, err, "count pending signals")
	}
	return n, nil
}

func scanSignals(rows *sql.Rows) ([]Signal, error) {
	var out []Signal
	for rows.Next() {
		var s Signal
		var signalType, status string
		if err := rows.Scan(&s.ID, &s.Timestamp, &signalType, &s.Confidence, &s.Module, &s.RawText, &status, &s.ExtractedDecisionID); err != nil {
			logging.Get(logging.CategorySignalQueue).Warn("signal row scan failed: %v", err)
			continue
		}
		s.SignalType = Level(signalType)
		s.Status = Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// NewID derives a stable identity key for a signal from its composite
// idempotency tuple (module, level, timestamp, hash of the raw text),
// grounded on domain.Signal.Key's approach (§8 idempotent ingestion).
func NewID(module string, signalType Level, timestamp int64, rawText string) string {
	return fmt.Sprintf("sig_%s_%s_%d_%x", module, signalType, timestamp, hashText(rawText))
}

func hashText(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
