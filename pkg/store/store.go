// Package store persists run summaries and their event streams in SQLite
// or Postgres so runs can be listed and their hash chains re-verified.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"

	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrChainMismatch is returned when a stored stream no longer hashes
	// to the recorded event log hash.
	ErrChainMismatch = errors.New("event chain mismatch")
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	seed BIGINT NOT NULL,
	version TEXT NOT NULL,
	config_hash TEXT NOT NULL,
	classification TEXT NOT NULL,
	s_star INTEGER NOT NULL,
	aa DOUBLE PRECISION NOT NULL,
	aaa DOUBLE PRECISION NOT NULL,
	event_count BIGINT NOT NULL,
	event_log_hash TEXT NOT NULL,
	summary TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	cycle BIGINT NOT NULL,
	epoch BIGINT NOT NULL,
	payload_hash TEXT NOT NULL,
	chain_hash TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID          string                 `json:"run_id"`
	Seed           int64                  `json:"seed"`
	Version        string                 `json:"version"`
	ConfigHash     string                 `json:"config_hash"`
	Classification harness.Classification `json:"classification"`
	Successions    int                    `json:"s_star"`
	AA             float64                `json:"aa"`
	AAA            float64                `json:"aaa"`
	EventCount     uint64                 `json:"event_count"`
	EventLogHash   string                 `json:"event_log_hash"`
	Summary        json.RawMessage        `json:"summary,omitempty"`
}

// Store is a SQL-backed run archive.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, logger: slog.Default().With("component", "store")}
}

// Open connects by DSN: postgres:// and postgresql:// URLs use Postgres,
// anything else is a SQLite path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, dialect := "sqlite", SQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, dialect = "postgres", Postgres
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables if needed.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveRun stores a summary and its full event stream in one transaction.
func (s *Store) SaveRun(ctx context.Context, summary *harness.Summary, events []*kernel.EventEnvelope) (err error) {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO runs (
		run_id, seed, version, config_hash, classification, s_star, aa, aaa, event_count, event_log_hash, summary
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		summary.RunID, summary.Seed, summary.Version, summary.ConfigHash, string(summary.Classification),
		summary.Successions, summary.AA, summary.AAA, int64(summary.EventCount), summary.EventLogHash, string(blob))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}

	insert := s.rebind(`INSERT INTO events (
		run_id, seq, event_id, event_type, cycle, epoch, payload_hash, chain_hash, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, ev := range events {
		payload, mErr := json.Marshal(ev.Payload)
		if mErr != nil {
			return fmt.Errorf("encode event %d: %w", ev.SequenceNumber, mErr)
		}
		if _, err = tx.ExecContext(ctx, insert, summary.RunID, int64(ev.SequenceNumber), ev.EventID, ev.EventType,
			ev.Cycle, ev.Epoch, ev.PayloadHash, ev.ChainHash, string(payload)); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.SequenceNumber, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", summary.RunID, err)
	}
	s.logger.Debug("run stored", "run_id", summary.RunID, "events", len(events))
	return nil
}

const runColumns = `run_id, seed, version, config_hash, classification, s_star, aa, aaa, event_count, event_log_hash, summary`

func scanRun(row interface{ Scan(...any) error }) (*RunRecord, error) {
	var (
		r       RunRecord
		class   string
		count   int64
		summary string
	)
	if err := row.Scan(&r.RunID, &r.Seed, &r.Version, &r.ConfigHash, &class, &r.Successions,
		&r.AA, &r.AAA, &count, &r.EventLogHash, &summary); err != nil {
		return nil, err
	}
	r.Classification = harness.Classification(class)
	r.EventCount = uint64(count)
	r.Summary = json.RawMessage(summary)
	return &r, nil
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`), runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs ordered by seed, without summaries.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs ORDER BY seed, run_id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.Summary = nil
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadEvents returns a run's events in sequence order.
func (s *Store) LoadEvents(ctx context.Context, runID string) ([]*kernel.EventEnvelope, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT seq, event_id, event_type, cycle, epoch, payload_hash, chain_hash, payload
		FROM events WHERE run_id = ? ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("load events %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*kernel.EventEnvelope
	for rows.Next() {
		var (
			ev      kernel.EventEnvelope
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &ev.EventID, &ev.EventType, &ev.Cycle, &ev.Epoch, &ev.PayloadHash, &ev.ChainHash, &payload); err != nil {
			return nil, fmt.Errorf("load events %s: %w", runID, err)
		}
		ev.SequenceNumber = uint64(seq)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", seq, err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// VerifyRun recomputes the stored hash chain and compares it with the
// recorded event log hash.
func (s *Store) VerifyRun(ctx context.Context, runID string) (string, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	events, err := s.LoadEvents(ctx, runID)
	if err != nil {
		return "", err
	}
	if uint64(len(events)) != run.EventCount {
		return "", fmt.Errorf("%w: %d events stored, %d recorded", ErrChainMismatch, len(events), run.EventCount)
	}
	hash, err := kernel.VerifyChain(events)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChainMismatch, err)
	}
	if hash != run.EventLogHash {
		return "", fmt.Errorf("%w: recomputed %s, recorded %s", ErrChainMismatch, hash, run.EventLogHash)
	}
	return hash, nil
}
