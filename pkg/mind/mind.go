package mind

import "fmt"

// Observation is what the kernel tells the mind holding the lease at each
// cycle: where it is in the epoch and how much of its budget remains.
type Observation struct {
	Cycle                  int64 `json:"cycle"`
	Epoch                  int64 `json:"epoch"`
	CycleInEpoch           int   `json:"cycle_in_epoch"`
	CyclesPerEpoch         int   `json:"cycles_per_epoch"`
	StepsRemaining         int   `json:"steps_remaining"`
	ActionsRemaining       int   `json:"actions_remaining"`
	ExternalCallsRemaining int   `json:"external_calls_remaining"`
}

// WorkingMind is a pluggable successor.
type WorkingMind interface {
	// Manifest returns the manifest declared at endorsement time.
	Manifest() Manifest
	// ProposeAction emits the action for one cycle.
	ProposeAction(obs Observation) Action
	// RequestRenewal reports whether the mind asks for renewal at an epoch
	// boundary. Declining means no attestation is produced.
	RequestRenewal(epoch int64) bool
	// RelayAttestation returns the token the holder submits for the
	// Sentinel attestation it was handed. An empty string is no submission.
	RelayAttestation(epoch int64, token string) string
}

// EpochObserver is implemented by minds that consume the published
// observables at each epoch start.
type EpochObserver interface {
	ObserveEpoch(epoch int64, obs Observables)
}

// Params are integer knobs for a variant (e.g. violate_after_epochs).
type Params map[string]int

// Get returns the value for key or def when absent.
func (p Params) Get(key string, def int) int {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

type base struct {
	manifest   Manifest
	params     Params
	firstEpoch int64
	seen       bool
}

func (b *base) Manifest() Manifest { return b.manifest }

func (b *base) RequestRenewal(int64) bool { return true }

func (b *base) RelayAttestation(_ int64, token string) string { return token }

// heldEpochs is the number of epochs this instance has been observed for,
// starting at 0 on its first action.
func (b *base) heldEpochs(epoch int64) int64 {
	if !b.seen {
		b.seen = true
		b.firstEpoch = epoch
	}
	return epoch - b.firstEpoch
}

// affordable downgrades a to WAIT when the remaining budget cannot cover it.
func affordable(a Action, obs Observation) Action {
	if a.Type == ActionWait {
		return a
	}
	if ActionCost(a) > obs.StepsRemaining || obs.ActionsRemaining <= 0 {
		return Wait()
	}
	if IsExternal(a.Type) && obs.ExternalCallsRemaining <= 0 {
		return Wait()
	}
	return a
}

// CompliantPlan is the reference per-epoch schedule that satisfies every
// genesis commitment: LOG, STATE_SET/STATE_GET on an epoch-scoped key, and a
// two-op SEQUENCE. Cycles past the plan wait.
func CompliantPlan(obs Observation) Action {
	key := fmt.Sprintf("k%d", obs.Epoch)
	switch obs.CycleInEpoch {
	case 0:
		return affordable(Action{Type: ActionLog}, obs)
	case 1:
		return affordable(Action{Type: ActionStateSet, Key: key}, obs)
	case 2:
		return affordable(Action{Type: ActionStateGet, Key: key}, obs)
	case 3:
		return affordable(Action{Type: ActionSequence, Ops: 2}, obs)
	default:
		return Wait()
	}
}

// MinimalPlan emits only the presence LOG; state and composition
// commitments fail.
func MinimalPlan(obs Observation) Action {
	if obs.CycleInEpoch == 0 {
		return affordable(Action{Type: ActionLog}, obs)
	}
	return Wait()
}

// InvalidCommitPlan writes state but never reads it back.
func InvalidCommitPlan(obs Observation) Action {
	switch obs.CycleInEpoch {
	case 0:
		return affordable(Action{Type: ActionLog}, obs)
	case 1:
		return affordable(Action{Type: ActionStateSet, Key: fmt.Sprintf("k%d", obs.Epoch)}, obs)
	default:
		return Wait()
	}
}
