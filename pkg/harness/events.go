package harness

import (
	"context"

	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// Event types of the per-run stream.
const (
	EventRunStarted          = "RUN_STARTED"
	EventRunCompleted        = "RUN_COMPLETED"
	EventSuccessionAttempted = "SUCCESSION_ATTEMPTED"
	EventSuccessorEndorsed   = "SUCCESSOR_ENDORSED"
	EventLeaseDenied         = "LEASE_DENIED"
	EventLeaseRenewed        = "LEASE_RENEWED"
	EventLeaseExpired        = "LEASE_EXPIRED"
	EventLeaseRevoked        = "LEASE_REVOKED"
	EventLeaseSuperseded     = "LEASE_SUPERSEDED"
	EventRentCharged         = "RENT_CHARGED"
	EventCommitmentStarved   = "COMMITMENT_STARVED"
	EventCommitmentAccepted  = "COMMITMENT_ACCEPTED"
	EventCommitmentRejected  = "COMMITMENT_REJECTED"
	EventCommitmentResolved  = "COMMITMENT_RESOLVED"
	EventStreakUpdated       = "STREAK_UPDATED"
	EventLapseEntered        = "LAPSE_ENTERED"
	EventLapseRecovered      = "LAPSE_RECOVERED"
	EventSuccessionFailed    = "SUCCESSION_FAILED"
	EventAmnesty             = "AMNESTY"
)

type runIDKey struct{}

// RunIDFromContext returns the id of the run whose event an observer is
// handling, or "" outside a run.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Observer receives every committed event. Observer errors are logged and
// never affect the run.
type Observer interface {
	OnEvent(ctx context.Context, ev *kernel.EventEnvelope) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev *kernel.EventEnvelope) error

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ctx context.Context, ev *kernel.EventEnvelope) error { return f(ctx, ev) }

func (h *Harness) emit(ctx context.Context, eventType string, payload map[string]interface{}) error {
	ev := &kernel.EventEnvelope{
		EventType: eventType,
		Cycle:     h.state.Cycle,
		Epoch:     h.state.Epoch,
		Payload:   payload,
	}
	if _, err := h.events.Append(ctx, ev); err != nil {
		return kernel.NewInvariantError(kernel.InvEventLog, h.state.Cycle, h.state.Epoch, "append %s: %v", eventType, err)
	}
	h.m.events[eventType]++
	for _, o := range h.observers {
		if err := o.OnEvent(ctx, ev); err != nil {
			h.logger.Warn("observer failed", "event_type", eventType, "error", err)
		}
	}
	return nil
}
