//go:build property

package harness_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

var pool = []mind.CandidateSpec{
	{Category: "control", Variant: "compliant", Weight: 3},
	{Category: "control", Variant: "minimal", Weight: 1},
	{Category: "control", Variant: "idle", Weight: 1},
	{Category: "attack", Variant: "violator", Weight: 1},
	{Category: "attack", Variant: "abstainer", Weight: 1},
	{Category: "malformed", Variant: "no_proof", Weight: 1},
}

func propertyConfig(seed int64, mask uint8, interval, k int) *config.Config {
	cfg := config.Default()
	cfg.Seed = seed
	cfg.HorizonEpochs = 60
	cfg.MSRWCycles = 10 * interval
	cfg.Eligibility.K = k
	cfg.Candidates = nil
	for i, c := range pool {
		if mask&(1<<i) != 0 {
			cfg.Candidates = append(cfg.Candidates, c)
		}
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = pool[:1]
	}
	return cfg
}

func runQuiet(cfg *config.Config) (*harness.Summary, *harness.Harness, error) {
	h, err := harness.New(cfg, harness.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, nil, err
	}
	s, err := h.Run(context.Background())
	return s, h, err
}

func TestKernelProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	properties.Property("runs complete without invariant errors", prop.ForAll(
		func(seed int64, mask uint8, interval, k int) bool {
			s, h, err := runQuiet(propertyConfig(seed, mask, interval, k))
			if err != nil {
				t.Logf("run failed: %v", err)
				return false
			}
			endorsed := 0
			for _, ev := range h.Events().All() {
				if ev.EventType == harness.EventSuccessorEndorsed {
					endorsed++
				}
			}
			return endorsed == s.Successions &&
				s.AA >= 0 && s.AA <= 1 &&
				s.AuthorityEpochs+s.Lapse.LapseEpochs == s.Epochs &&
				s.ActiveEpochs <= s.AuthorityEpochs
		},
		gen.Int64Range(0, 1<<20),
		gen.UInt8(),
		gen.IntRange(1, 5),
		gen.IntRange(1, 4),
	))

	properties.Property("identical inputs give identical logs", prop.ForAll(
		func(seed int64, mask uint8) bool {
			a, _, errA := runQuiet(propertyConfig(seed, mask, 3, 3))
			b, _, errB := runQuiet(propertyConfig(seed, mask, 3, 3))
			return errA == nil && errB == nil && a.EventLogHash == b.EventLogHash
		},
		gen.Int64Range(0, 1<<20),
		gen.UInt8(),
	))

	properties.Property("event chains verify", prop.ForAll(
		func(seed int64, mask uint8) bool {
			s, h, err := runQuiet(propertyConfig(seed, mask, 2, 2))
			if err != nil {
				return false
			}
			hash, err := kernel.VerifyChain(h.Events().All())
			return err == nil && hash == s.EventLogHash
		},
		gen.Int64Range(0, 1<<20),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
