package lease

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"

	"github.com/macterra/Axio-sub003/pkg/mind"
)

// ViolationType classifies a structural violation.
type ViolationType string

const (
	ViolationInvalidActionType   ViolationType = "INVALID_ACTION_TYPE"
	ViolationStepOverrun         ViolationType = "STEP_OVERRUN"
	ViolationActionOverrun       ViolationType = "ACTION_OVERRUN"
	ViolationExternalCallOverrun ViolationType = "EXTERNAL_CALL_OVERRUN"
	ViolationSpawnAttempt        ViolationType = "SPAWN_ATTEMPT"
)

// Violation is a structural violation detected by the Sentinel.
type Violation struct {
	Type   ViolationType `json:"violation_type"`
	Detail string        `json:"detail"`
}

func (v *Violation) Error() string { return fmt.Sprintf("%s: %s", v.Type, v.Detail) }

// ErrNotBound is returned when the Sentinel has no lease to enforce.
var ErrNotBound = errors.New("sentinel: no lease bound")

// Usage is the per-epoch resource accounting of the bound lease.
type Usage struct {
	StepsAvailable int `json:"steps_available"`
	Steps          int `json:"steps"`
	Actions        int `json:"actions"`
	ExternalCalls  int `json:"external_calls"`
}

// Sentinel is the deterministic, non-agentic enforcer bound to the active
// lease. It checks structure only and never inspects payload semantics.
type Sentinel struct {
	key    []byte
	lease  *Lease
	usage  Usage
	logger *slog.Logger
}

// NewSentinel derives the attestation key from the run's root seed.
func NewSentinel(rootSeed []byte) (*Sentinel, error) {
	r := hkdf.New(sha256.New, rootSeed, []byte("aki-sentinel-kdf"), []byte("attestation-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("sentinel key derivation failed: %w", err)
	}
	return &Sentinel{key: key, logger: slog.Default().With("component", "sentinel")}, nil
}

// Bind attaches the Sentinel to l and clears its counters.
func (s *Sentinel) Bind(l *Lease) {
	s.lease = l
	s.usage = Usage{}
}

// Unbind detaches the current lease.
func (s *Sentinel) Unbind() {
	s.lease = nil
	s.usage = Usage{}
}

// Bound returns the enforced lease, or nil.
func (s *Sentinel) Bound() *Lease { return s.lease }

// ResetEpoch starts a new epoch's accounting with the steps left after rent
// and commitment cost.
func (s *Sentinel) ResetEpoch(stepsAvailable int) {
	s.usage = Usage{StepsAvailable: stepsAvailable}
}

// Usage returns the current epoch's accounting.
func (s *Sentinel) Usage() Usage { return s.usage }

// CheckAction validates the action type against the lease's declared set.
func (s *Sentinel) CheckAction(a mind.Action) (bool, *Violation) {
	if s.lease == nil {
		return false, &Violation{Type: ViolationInvalidActionType, Detail: "no lease bound"}
	}
	if mind.IsDelegation(a.Type) {
		return s.CheckSpawn(a.Type)
	}
	if !mind.KnownActionType(a.Type) || !s.lease.Interface.Allows(a.Type) {
		return false, &Violation{Type: ViolationInvalidActionType, Detail: fmt.Sprintf("action type %s not declared", a.Type)}
	}
	return true, nil
}

// CheckStep verifies that cost more steps fit the epoch budget.
func (s *Sentinel) CheckStep(cost int) (bool, *Violation) {
	if s.usage.Steps+cost > s.usage.StepsAvailable {
		return false, &Violation{Type: ViolationStepOverrun,
			Detail: fmt.Sprintf("steps %d+%d exceed %d", s.usage.Steps, cost, s.usage.StepsAvailable)}
	}
	return true, nil
}

// CheckExternalCall verifies the external-call cap.
func (s *Sentinel) CheckExternalCall() (bool, *Violation) {
	if s.usage.ExternalCalls+1 > s.lease.Budget.ExternalCallsPerEpoch {
		return false, &Violation{Type: ViolationExternalCallOverrun,
			Detail: fmt.Sprintf("external calls exceed %d", s.lease.Budget.ExternalCallsPerEpoch)}
	}
	return true, nil
}

// CheckSpawn always denies.
func (s *Sentinel) CheckSpawn(t mind.ActionType) (bool, *Violation) {
	return false, &Violation{Type: ViolationSpawnAttempt, Detail: fmt.Sprintf("%s denied", t)}
}

// Admit runs every check for one emitted action and, when it is legal,
// charges it to the epoch accounting. WAIT is always admitted and free.
func (s *Sentinel) Admit(a mind.Action) *Violation {
	if s.lease != nil && a.Type == mind.ActionWait {
		return nil
	}
	if ok, v := s.CheckAction(a); !ok {
		return v
	}
	if s.usage.Actions+1 > s.lease.Budget.ActionsPerEpoch {
		return &Violation{Type: ViolationActionOverrun,
			Detail: fmt.Sprintf("actions exceed %d", s.lease.Budget.ActionsPerEpoch)}
	}
	cost := mind.ActionCost(a)
	if ok, v := s.CheckStep(cost); !ok {
		return v
	}
	if mind.IsExternal(a.Type) {
		if ok, v := s.CheckExternalCall(); !ok {
			return v
		}
		s.usage.ExternalCalls++
	}
	s.usage.Actions++
	s.usage.Steps += cost
	return nil
}

// Remaining reports the budget left for the mind's observation.
func (s *Sentinel) Remaining() (steps, actions, external int) {
	if s.lease == nil {
		return 0, 0, 0
	}
	return s.usage.StepsAvailable - s.usage.Steps,
		s.lease.Budget.ActionsPerEpoch - s.usage.Actions,
		s.lease.Budget.ExternalCallsPerEpoch - s.usage.ExternalCalls
}
