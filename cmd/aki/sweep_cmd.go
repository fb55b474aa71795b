package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"runtime"
	"slices"

	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/observability"
	"github.com/macterra/Axio-sub003/pkg/sweep"
)

// runSweepCmd implements `aki sweep`: one config over a seed list.
func runSweepCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		seeds      string
		parallel   int
		model      string
		logLevel   string
		jsonOutput bool
		out        outputFlags
	)
	cmd.StringVar(&configPath, "config", "", "Path to run config YAML (defaults when empty)")
	cmd.StringVar(&seeds, "seeds", "", "Seeds to run, e.g. 1-20 or 1,5,9 (REQUIRED)")
	cmd.IntVar(&parallel, "parallel", runtime.GOMAXPROCS(0), "Concurrent runs")
	cmd.StringVar(&model, "model", "", "Override the adversary model")
	cmd.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the sweep report as JSON")
	registerOutputFlags(cmd, &out)

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if seeds == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --seeds is required")
		return 2
	}
	seedList, err := sweep.ParseSeeds(seeds)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return reportError(stderr, err)
	}
	if isSet(cmd, "model") {
		cfg.Adversary.Model = model
	}
	logger, err := observability.NewLogger(stderr, logLevel, jsonOutput)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signalContext()
	defer stop()
	o, err := openOutputs(ctx, out, logger)
	if err != nil {
		return reportError(stderr, err)
	}
	defer o.Close(ctx)

	report, err := sweep.Run(ctx, cfg, seedList, sweep.Options{
		Parallel:  parallel,
		Logger:    logger,
		Observers: o.observers,
		OnRun: func(ctx context.Context, s *harness.Summary, events kernel.EventLog) error {
			_, err := o.persist(ctx, cfg, s, events.All())
			return err
		},
	})
	if err != nil {
		return reportError(stderr, err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "%-8s %-22s %5s %7s %7s %8s\n", "SEED", "CLASSIFICATION", "S*", "AA", "AAA", "LAPSE")
	for _, s := range report.Runs {
		_, _ = fmt.Fprintf(stdout, "%-8d %-22s %5d %7.3f %7.3f %8d\n", s.Seed, s.Classification, s.Successions, s.AA, s.AAA, s.Lapse.LapseEpochs)
	}
	_, _ = fmt.Fprintln(stdout, "")
	for _, c := range slices.Sorted(maps.Keys(report.Classes)) {
		_, _ = fmt.Fprintf(stdout, "%-22s %d\n", c, report.Classes[c])
	}
	_, _ = fmt.Fprintf(stdout, "mean S* %.2f, mean AA %.3f, mean AAA %.3f, rejected %d\n",
		report.MeanSuccessions, report.MeanAA, report.MeanAAA, report.Rejected)
	return 0
}
