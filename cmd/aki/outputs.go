package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/macterra/Axio-sub003/pkg/artifacts"
	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/observability"
	"github.com/macterra/Axio-sub003/pkg/sink"
	"github.com/macterra/Axio-sub003/pkg/store"
)

// outputFlags are shared by run and sweep.
type outputFlags struct {
	db        string
	artifacts string
	redis     string
	redisRate float64
	otlp      string
}

// outputs holds every optional destination of finished runs.
type outputs struct {
	store     *store.Store
	blobs     artifacts.BlobStore
	redis     *redis.Client
	telemetry *observability.Provider
	recorder  *observability.Recorder
	observers []harness.Observer
	logger    *slog.Logger
}

func openOutputs(ctx context.Context, f outputFlags, logger *slog.Logger) (_ *outputs, err error) {
	o := &outputs{logger: logger}
	defer func() {
		if err != nil {
			o.Close(context.Background())
		}
	}()

	if f.db != "" {
		if o.store, err = store.Open(ctx, f.db); err != nil {
			return nil, err
		}
	}
	if f.artifacts != "" {
		if o.blobs, err = artifacts.Open(ctx, f.artifacts); err != nil {
			return nil, err
		}
	}
	if f.redis != "" {
		var s *sink.RedisSink
		s, o.redis, err = sink.Dial(ctx, f.redis, sink.Options{Rate: rate.Limit(f.redisRate), Burst: 64, Logger: logger})
		if err != nil {
			return nil, err
		}
		o.observers = append(o.observers, s)
	}

	endpoint := f.otlp
	if endpoint == "" {
		endpoint = os.Getenv(observability.EnvEndpoint)
	}
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.OTLPEndpoint = endpoint
	cfg.Insecure = true
	if o.telemetry, err = observability.New(ctx, cfg); err != nil {
		return nil, err
	}
	if o.recorder, err = observability.NewRecorder(o.telemetry); err != nil {
		return nil, err
	}
	o.observers = append(o.observers, o.recorder)
	return o, nil
}

// persist stores a finished run wherever the flags asked for. It returns the
// bundle digest when artifacts are enabled.
func (o *outputs) persist(ctx context.Context, cfg *config.Config, summary *harness.Summary, events []*kernel.EventEnvelope) (string, error) {
	if o.store != nil {
		if err := o.store.SaveRun(ctx, summary, events); err != nil {
			return "", fmt.Errorf("save run %s: %w", summary.RunID, err)
		}
	}
	if o.blobs == nil {
		return "", nil
	}
	runCfg := *cfg
	runCfg.Seed = summary.Seed
	digest, err := artifacts.Archive(ctx, o.blobs, artifacts.NewBundle(&runCfg, summary, events))
	if err != nil {
		return "", fmt.Errorf("archive run %s: %w", summary.RunID, err)
	}
	o.logger.Info("run archived", "run_id", summary.RunID, "digest", digest)
	return digest, nil
}

// Close releases every open destination.
func (o *outputs) Close(ctx context.Context) {
	var errs []error
	if o.store != nil {
		errs = append(errs, o.store.Close())
	}
	if o.redis != nil {
		errs = append(errs, o.redis.Close())
	}
	if o.telemetry != nil {
		errs = append(errs, o.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		o.logger.Warn("close outputs", "error", err)
	}
}
