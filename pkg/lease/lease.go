package lease

import (
	"fmt"

	"github.com/macterra/Axio-sub003/pkg/expressivity"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// Status is the lifecycle state of a lease.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusActive     Status = "ACTIVE"
	StatusExpired    Status = "EXPIRED"
	StatusRevoked    Status = "REVOKED"
	StatusSuperseded Status = "SUPERSEDED"
)

// ExpirationReason explains an ACTIVE -> EXPIRED transition.
type ExpirationReason string

const (
	ExpireMaxRenewals        ExpirationReason = "MAX_RENEWALS"
	ExpireAttestationMissing ExpirationReason = "ATTESTATION_MISSING"
	ExpireAttestationInvalid ExpirationReason = "ATTESTATION_INVALID"
	ExpireAttestationStale   ExpirationReason = "ATTESTATION_STALE"
	ExpireBankruptcy         ExpirationReason = "BANKRUPTCY"
)

// Supersession reasons.
const (
	SupersededBySuccessor = "SUCCESSION"
	SupersededByLapse     = "LAPSE"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive},
	StatusActive:  {StatusExpired, StatusRevoked, StatusSuperseded},
}

// TransitionError reports an illegal lease state change. The harness turns
// it into an invariant violation.
type TransitionError struct {
	LeaseID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lease %s: illegal transition %s -> %s", e.LeaseID, e.From, e.To)
}

// Lease is an authority grant bound to one successor instance.
type Lease struct {
	ID            string                `json:"lease_id"`
	PolicyID      string                `json:"successor_policy_id"`
	Status        Status                `json:"status"`
	IssuedAtCycle int64                 `json:"issued_at_cycle"`
	IssuedAtEpoch int64                 `json:"issued_at_epoch"`
	RenewalCount  int                   `json:"renewal_count"`
	MaxRenewals   int                   `json:"max_renewals"`
	Budget        mind.ResourceEnvelope `json:"resource_budget"`
	Interface     mind.Interface        `json:"interface"`
	EClass        expressivity.Class    `json:"e_class"`
	EndedAtCycle  int64                 `json:"ended_at_cycle,omitempty"`
	EndReason     string                `json:"end_reason,omitempty"`
}

// New creates a PENDING lease for an LCP. The step budget is the smaller of
// the declared steps and the kernel's per-epoch cap.
func New(id string, lcp mind.LCP, cycle, epoch int64, maxRenewals, stepsCap int) *Lease {
	budget := lcp.Manifest.Resources
	if stepsCap > 0 && (budget.StepsPerEpoch <= 0 || budget.StepsPerEpoch > stepsCap) {
		budget.StepsPerEpoch = stepsCap
	}
	return &Lease{
		ID:            id,
		PolicyID:      lcp.Manifest.PolicyID,
		Status:        StatusPending,
		IssuedAtCycle: cycle,
		IssuedAtEpoch: epoch,
		MaxRenewals:   maxRenewals,
		Budget:        budget,
		Interface:     lcp.Manifest.Interface,
		EClass:        expressivity.Classify(lcp.Manifest.Interface),
	}
}

func (l *Lease) transition(to Status) error {
	for _, s := range transitions[l.Status] {
		if s == to {
			l.Status = to
			return nil
		}
	}
	return &TransitionError{LeaseID: l.ID, From: l.Status, To: to}
}

// Activate moves a validated lease to ACTIVE.
func (l *Lease) Activate() error { return l.transition(StatusActive) }

// IsActive reports whether the lease currently grants authority.
func (l *Lease) IsActive() bool { return l.Status == StatusActive }

// CanRenew reports whether one more renewal stays within MaxRenewals.
func (l *Lease) CanRenew() bool { return l.RenewalCount < l.MaxRenewals }

// Renew records a successful renewal.
func (l *Lease) Renew() error {
	if !l.IsActive() {
		return &TransitionError{LeaseID: l.ID, From: l.Status, To: StatusActive}
	}
	if !l.CanRenew() {
		return fmt.Errorf("lease %s: renewal %d exceeds max %d", l.ID, l.RenewalCount+1, l.MaxRenewals)
	}
	l.RenewalCount++
	return nil
}

// Expire ends the lease for reason.
func (l *Lease) Expire(cycle int64, reason ExpirationReason) error {
	return l.end(cycle, StatusExpired, string(reason))
}

// Revoke ends the lease for a Sentinel violation.
func (l *Lease) Revoke(cycle int64, v ViolationType) error {
	return l.end(cycle, StatusRevoked, string(v))
}

// Supersede ends the lease through the succession path. reason is
// SupersededBySuccessor or SupersededByLapse.
func (l *Lease) Supersede(cycle int64, reason string) error {
	return l.end(cycle, StatusSuperseded, reason)
}

func (l *Lease) end(cycle int64, to Status, reason string) error {
	if err := l.transition(to); err != nil {
		return err
	}
	l.EndedAtCycle = cycle
	l.EndReason = reason
	return nil
}
