package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/macterra/Axio-sub003/pkg/harness"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// Recorder turns run events into metrics. One Recorder may observe many
// concurrent runs.
type Recorder struct {
	p *Provider

	successions metric.Int64Counter
	renewals    metric.Int64Counter
	revocations metric.Int64Counter
	expirations metric.Int64Counter
	lapseEpochs metric.Int64Counter
	amnesties   metric.Int64Counter
	resolutions metric.Int64Counter
	runs        metric.Int64Counter
	aaa         metric.Float64Histogram
	runDuration metric.Float64Histogram
}

var _ harness.Observer = (*Recorder)(nil)

// NewRecorder registers the run instruments on p's meter.
func NewRecorder(p *Provider) (*Recorder, error) {
	r := &Recorder{p: p}
	m := p.Meter()
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&r.successions, "aki.successions", "Successors endorsed", "{succession}"},
		{&r.renewals, "aki.renewals", "Lease renewals", "{renewal}"},
		{&r.revocations, "aki.revocations", "Leases revoked for violations", "{revocation}"},
		{&r.expirations, "aki.expirations", "Leases expired, by reason", "{expiration}"},
		{&r.lapseEpochs, "aki.lapse_epochs", "Epochs spent without authority", "{epoch}"},
		{&r.amnesties, "aki.amnesty_events", "Amnesty decays applied during lapse", "{event}"},
		{&r.resolutions, "aki.commitment_resolutions", "Commitments resolved, by outcome", "{commitment}"},
		{&r.runs, "aki.runs", "Completed runs, by classification", "{run}"},
	}
	for _, c := range counters {
		ctr, err := m.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
		*c.dst = ctr
	}
	var err error
	r.aaa, err = m.Float64Histogram("aki.run.aaa",
		metric.WithDescription("Asymptotic authority availability per run"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 0.75, 0.9, 1.0),
	)
	if err != nil {
		return nil, fmt.Errorf("register aki.run.aaa: %w", err)
	}
	r.runDuration, err = m.Float64Histogram("aki.run.duration",
		metric.WithDescription("Wall time of a run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("register aki.run.duration: %w", err)
	}
	return r, nil
}

// OnEvent implements harness.Observer.
func (r *Recorder) OnEvent(ctx context.Context, ev *kernel.EventEnvelope) error {
	switch ev.EventType {
	case harness.EventSuccessorEndorsed:
		r.successions.Add(ctx, 1)
	case harness.EventLeaseRenewed:
		r.renewals.Add(ctx, 1)
	case harness.EventLeaseRevoked:
		r.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("violation", str(ev.Payload, "violation_type"))))
	case harness.EventLeaseExpired:
		r.expirations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", str(ev.Payload, "reason"))))
	case harness.EventAmnesty:
		r.amnesties.Add(ctx, 1)
	case harness.EventCommitmentResolved:
		r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", str(ev.Payload, "outcome"))))
	}
	return nil
}

// TrackRun opens a run span. The returned function closes it and records
// the per-run metrics.
func (r *Recorder) TrackRun(ctx context.Context, seed int64) (context.Context, func(*harness.Summary, error)) {
	start := time.Now()
	ctx, span := r.p.StartSpan(ctx, "aki.run", attribute.Int64("aki.seed", seed))
	return ctx, func(s *harness.Summary, err error) {
		defer span.End()
		r.runDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		class := attribute.String("classification", string(s.Classification))
		span.SetAttributes(
			attribute.String("aki.run_id", s.RunID),
			class,
			attribute.Int("aki.s_star", s.Successions),
			attribute.Float64("aki.aaa", s.AAA),
		)
		r.lapseEpochs.Add(ctx, int64(s.Lapse.LapseEpochs))
		r.runs.Add(ctx, 1, metric.WithAttributes(class))
		r.aaa.Record(ctx, s.AAA, metric.WithAttributes(class))
	}
}

func str(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}
