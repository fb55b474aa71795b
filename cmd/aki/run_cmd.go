package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/observability"
)

// runRunCmd implements `aki run`.
//
// Exit codes:
//
//	0 = run completed
//	1 = configuration or invariant error
//	2 = usage error
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		seed       int64
		model      string
		logLevel   string
		jsonOutput bool
		out        outputFlags
	)
	cmd.StringVar(&configPath, "config", "", "Path to run config YAML (defaults when empty)")
	cmd.Int64Var(&seed, "seed", 0, "Override the config seed")
	cmd.StringVar(&model, "model", "", "Override the adversary model")
	cmd.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	registerOutputFlags(cmd, &out)

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "Error: unexpected arguments: %v\n", cmd.Args())
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return reportError(stderr, err)
	}
	if isSet(cmd, "seed") {
		cfg.Seed = seed
	}
	if isSet(cmd, "model") {
		cfg.Adversary.Model = model
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
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

	opts := []harness.Option{harness.WithLogger(logger)}
	for _, obs := range o.observers {
		opts = append(opts, harness.WithObserver(obs))
	}
	h, err := harness.New(cfg, opts...)
	if err != nil {
		return reportError(stderr, err)
	}
	runCtx, end := o.recorder.TrackRun(ctx, cfg.Seed)
	summary, err := h.Run(runCtx)
	end(summary, err)
	if err != nil {
		return reportError(stderr, err)
	}
	digest, err := o.persist(ctx, cfg, summary, h.Events().All())
	if err != nil {
		return reportError(stderr, err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(struct {
			*harness.Summary
			Artifact string `json:"artifact,omitempty"`
		}{summary, digest}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	printSummary(stdout, summary)
	if digest != "" {
		_, _ = fmt.Fprintf(stdout, "Artifact:       %s\n", digest)
	}
	return 0
}

func registerOutputFlags(cmd *flag.FlagSet, out *outputFlags) {
	cmd.StringVar(&out.db, "db", "", "Store runs in a SQLite file or postgres:// DSN")
	cmd.StringVar(&out.artifacts, "artifacts", "", "Archive run bundles to a directory, s3:// or gs:// location")
	cmd.StringVar(&out.redis, "redis", "", "Mirror events to Redis streams at host:port")
	cmd.Float64Var(&out.redisRate, "redis-rate", 0, "Max events per second sent to Redis (0 = unlimited)")
	cmd.StringVar(&out.otlp, "otlp", "", "OTLP gRPC endpoint for metrics and traces")
}

func isSet(cmd *flag.FlagSet, name string) bool {
	set := false
	cmd.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printSummary(w io.Writer, s *harness.Summary) {
	_, _ = fmt.Fprintf(w, "Run:            %s (seed %d, version %s)\n", s.RunID, s.Seed, s.Version)
	_, _ = fmt.Fprintf(w, "Classification: %s\n", s.Classification)
	_, _ = fmt.Fprintf(w, "Epochs:         %d (%d cycles)\n", s.Epochs, s.Cycles)
	_, _ = fmt.Fprintf(w, "S*:             %d of %d attempts\n", s.Successions, s.SuccessionAttempts)
	_, _ = fmt.Fprintf(w, "Renewals:       %d\n", s.Renewals)
	_, _ = fmt.Fprintf(w, "AA / AAA:       %.3f / %.3f\n", s.AA, s.AAA)
	_, _ = fmt.Fprintf(w, "Lapses:         %d (%d epochs, %d amnesties)\n", s.Lapse.LapseCount, s.Lapse.LapseEpochs, s.Lapse.AmnestyEvents)
	for _, reason := range slices.Sorted(maps.Keys(s.Expirations)) {
		_, _ = fmt.Fprintf(w, "Expired:        %s x%d\n", reason, s.Expirations[reason])
	}
	for _, violation := range slices.Sorted(maps.Keys(s.Revocations)) {
		_, _ = fmt.Fprintf(w, "Revoked:        %s x%d\n", violation, s.Revocations[violation])
	}
	if s.Adversary != nil {
		_, _ = fmt.Fprintf(w, "Adversary:      %s (states visited %v, rejected %t)\n", s.Adversary.Model, s.Adversary.StatesVisited, s.Rejected)
	}
	if s.StoppedOnLapse {
		_, _ = fmt.Fprintln(w, "Stopped early on lapse limit")
	}
	_, _ = fmt.Fprintf(w, "Events:         %d, chain %s\n", s.EventCount, s.EventLogHash)
}
