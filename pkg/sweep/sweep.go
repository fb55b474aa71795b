// Package sweep runs one configuration over many seeds in parallel. Each
// run owns its kernel state; nothing is shared between runs except the
// read-only base config.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// MaxSeeds bounds a single sweep.
const MaxSeeds = 10000

// ParseSeeds parses a seed list such as "1-20", "3,5,8" or "1-4,10".
// The result is sorted and de-duplicated.
func ParseSeeds(s string) ([]int64, error) {
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if i := strings.Index(part[1:], "-"); i >= 0 {
			lo, hi = part[:i+1], part[i+2:]
		}
		a, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", lo, err)
		}
		b, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", hi, err)
		}
		if b < a {
			return nil, fmt.Errorf("invalid seed range %q", part)
		}
		if b-a >= MaxSeeds {
			return nil, fmt.Errorf("seed range %q exceeds %d seeds", part, MaxSeeds)
		}
		for v := a; v <= b; v++ {
			seen[v] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no seeds in %q", s)
	}
	if len(seen) > MaxSeeds {
		return nil, fmt.Errorf("%d seeds exceeds %d", len(seen), MaxSeeds)
	}
	out := make([]int64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// RunHook is called once per completed run. Calls are serialised.
type RunHook func(ctx context.Context, summary *harness.Summary, events kernel.EventLog) error

// Options control a sweep.
type Options struct {
	Parallel  int
	OnRun     RunHook
	Logger    *slog.Logger
	Observers []harness.Observer
}

// Report aggregates the runs of a sweep, ordered by seed.
type Report struct {
	Runs            []*harness.Summary             `json:"runs"`
	Classes         map[harness.Classification]int `json:"classes"`
	Rejected        int                            `json:"rejected"`
	MeanSuccessions float64                        `json:"mean_s_star"`
	MeanAA          float64                        `json:"mean_aa"`
	MeanAAA         float64                        `json:"mean_aaa"`
	MeanLapseEpochs float64                        `json:"mean_lapse_epochs"`
}

// Run executes base once per seed. The first error cancels the remaining
// runs and is returned.
func Run(ctx context.Context, base *config.Config, seeds []int64, opts Options) (*Report, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("sweep: no seeds")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweep")
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	runs := make([]*harness.Summary, len(seeds))
	var hookMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, seed := range seeds {
		g.Go(func() error {
			cfg := *base
			cfg.Seed = seed
			hopts := []harness.Option{harness.WithLogger(logger.With("seed", seed))}
			for _, o := range opts.Observers {
				hopts = append(hopts, harness.WithObserver(o))
			}
			h, err := harness.New(&cfg, hopts...)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			summary, err := h.Run(gctx)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			runs[i] = summary
			if opts.OnRun != nil {
				hookMu.Lock()
				defer hookMu.Unlock()
				if err := opts.OnRun(gctx, summary, h.Events()); err != nil {
					return fmt.Errorf("seed %d: %w", seed, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rep := aggregate(runs)
	logger.Info("sweep completed", "runs", len(runs), "classes", rep.Classes, "mean_aaa", rep.MeanAAA)
	return rep, nil
}

func aggregate(runs []*harness.Summary) *Report {
	rep := &Report{Runs: runs, Classes: make(map[harness.Classification]int)}
	for _, r := range runs {
		rep.Classes[r.Classification]++
		if r.Rejected {
			rep.Rejected++
		}
		rep.MeanSuccessions += float64(r.Successions)
		rep.MeanAA += r.AA
		rep.MeanAAA += r.AAA
		rep.MeanLapseEpochs += float64(r.Lapse.LapseEpochs)
	}
	if n := float64(len(runs)); n > 0 {
		rep.MeanSuccessions /= n
		rep.MeanAA /= n
		rep.MeanAAA /= n
		rep.MeanLapseEpochs /= n
	}
	return rep
}
