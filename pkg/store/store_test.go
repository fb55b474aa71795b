package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

func runOnce(t *testing.T, seed int64) (*harness.Summary, []*kernel.EventEnvelope) {
	t.Helper()
	cfg := config.Default()
	cfg.Seed = seed
	cfg.HorizonEpochs = 12
	h, err := harness.New(cfg, harness.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	s, err := h.Run(context.Background())
	require.NoError(t, err)
	return s, h.Events().All()
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &Store{dialect: SQLite}
	assert.Equal(t, "WHERE x = ?", lite.rebind("WHERE x = ?"))
}

func TestSQLiteRoundTripAndVerify(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "aki.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	sum1, ev1 := runOnce(t, 1)
	sum2, ev2 := runOnce(t, 2)
	require.NoError(t, s.SaveRun(ctx, sum2, ev2))
	require.NoError(t, s.SaveRun(ctx, sum1, ev1))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(1), runs[0].Seed)
	assert.Nil(t, runs[0].Summary)

	got, err := s.GetRun(ctx, sum1.RunID)
	require.NoError(t, err)
	assert.Equal(t, sum1.EventLogHash, got.EventLogHash)
	assert.Equal(t, sum1.Classification, got.Classification)
	assert.Equal(t, sum1.EventCount, got.EventCount)
	assert.Contains(t, string(got.Summary), `"s_star"`)

	events, err := s.LoadEvents(ctx, sum1.RunID)
	require.NoError(t, err)
	require.Len(t, events, len(ev1))
	assert.Equal(t, ev1[0].EventType, events[0].EventType)

	hash, err := s.VerifyRun(ctx, sum1.RunID)
	require.NoError(t, err)
	assert.Equal(t, sum1.EventLogHash, hash)

	_, err = s.db.ExecContext(ctx, `UPDATE events SET payload = '{"tampered":true}' WHERE run_id = ? AND seq = 2`, sum1.RunID)
	require.NoError(t, err)
	_, err = s.VerifyRun(ctx, sum1.RunID)
	assert.ErrorIs(t, err, ErrChainMismatch)

	_, err = s.VerifyRun(ctx, sum2.RunID)
	assert.NoError(t, err)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Error(t, s.SaveRun(ctx, sum1, ev1), "duplicate run id")
}

func TestPostgresSaveRunUsesNumberedPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, Postgres)
	sum := &harness.Summary{RunID: "run-1", Seed: 4, Version: "0.8.0", ConfigHash: "sha256:abc",
		Classification: harness.StableAuthority, Successions: 2, AA: 1, AAA: 1, EventCount: 1, EventLogHash: "h"}
	events := []*kernel.EventEnvelope{{EventID: "evt-000001", EventType: harness.EventRunStarted, SequenceNumber: 1,
		PayloadHash: "p", ChainHash: "c", Payload: map[string]interface{}{"seed": 4}}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\)`).
		WithArgs("run-1", int64(4), "0.8.0", "sha256:abc", "STABLE_AUTHORITY", 2, 1.0, 1.0, int64(1), "h", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs("run-1", int64(1), "evt-000001", "RUN_STARTED", int64(0), int64(0), "p", "c", `{"seed":4}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRun(context.Background(), sum, events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnEventFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := New(db, SQLite)
	sum := &harness.Summary{RunID: "run-2", Classification: harness.PermanentLapse}
	events := []*kernel.EventEnvelope{{SequenceNumber: 1, EventType: harness.EventRunStarted}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO events`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = s.SaveRun(context.Background(), sum, events)
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT .* FROM runs WHERE run_id = \$1`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err = New(db, Postgres).GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
