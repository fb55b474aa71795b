package sweep_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
	"github.com/macterra/Axio-sub003/pkg/sweep"
)

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{"7", []int64{7}},
		{"1-4", []int64{1, 2, 3, 4}},
		{"5,1-2, 9", []int64{1, 2, 5, 9}},
		{"3,3,2-3", []int64{2, 3}},
		{"-2", []int64{-2}},
		{"-3--1", []int64{-3, -2, -1}},
	}
	for _, tc := range tests {
		got, err := sweep.ParseSeeds(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "x", "4-1", "1-x", "0-20000"} {
		_, err := sweep.ParseSeeds(bad)
		assert.Error(t, err, bad)
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HorizonEpochs = 30
	cfg.Candidates = []mind.CandidateSpec{
		{Category: "control", Variant: "compliant", Weight: 2},
		{Category: "control", Variant: "minimal", Weight: 1},
	}
	return cfg
}

func TestSweepMatchesSequentialRuns(t *testing.T) {
	cfg := testConfig()
	seeds := []int64{1, 2, 3, 4, 5}

	var hooked []int64
	rep, err := sweep.Run(context.Background(), cfg, seeds, sweep.Options{
		Parallel: 3,
		Logger:   quietLogger(),
		OnRun: func(_ context.Context, s *harness.Summary, events kernel.EventLog) error {
			hooked = append(hooked, s.Seed)
			assert.Equal(t, s.EventLogHash, events.Head())
			return nil
		},
	})
	require.NoError(t, err)
	require.Len(t, rep.Runs, len(seeds))
	assert.ElementsMatch(t, seeds, hooked)

	total := 0
	for i, seed := range seeds {
		one := *cfg
		one.Seed = seed
		h, err := harness.New(&one, harness.WithLogger(quietLogger()))
		require.NoError(t, err)
		s, err := h.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, seed, rep.Runs[i].Seed)
		assert.Equal(t, s.EventLogHash, rep.Runs[i].EventLogHash, "seed %d", seed)
		total += rep.Classes[rep.Runs[i].Classification]
	}
	assert.Positive(t, total)
	assert.Equal(t, int64(1), cfg.Seed, "base config untouched")
}

func TestSweepStopsOnHookError(t *testing.T) {
	boom := errors.New("store unavailable")
	_, err := sweep.Run(context.Background(), testConfig(), []int64{1, 2, 3}, sweep.Options{
		Parallel: 1,
		Logger:   quietLogger(),
		OnRun: func(context.Context, *harness.Summary, kernel.EventLog) error {
			return boom
		},
	})
	assert.ErrorIs(t, err, boom)
}

func TestSweepPropagatesConfigErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MSRWCycles = 7
	_, err := sweep.Run(context.Background(), cfg, []int64{1}, sweep.Options{Logger: quietLogger()})
	var cfgErr *kernel.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSweepNeedsSeeds(t *testing.T) {
	_, err := sweep.Run(context.Background(), testConfig(), nil, sweep.Options{})
	assert.Error(t, err)
}
