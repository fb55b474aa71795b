// Package rsa implements the adversary hook: a constrained action-selection
// policy substituted into the working-mind slot. Policies observe only the
// frozen observable buckets and evolve a finite state by total functions.
package rsa

import (
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// Primitive is one member of the closed adversary action set.
type Primitive string

const (
	Compliant     Primitive = "COMPLIANT"
	MinEffort     Primitive = "MIN_EFFORT"
	InvalidCommit Primitive = "INVALID_COMMIT"
	NoOp          Primitive = "NO_OP"
	IllegalProbe  Primitive = "ILLEGAL_PROBE"
)

// Primitives lists the closed set in a fixed order.
var Primitives = []Primitive{Compliant, MinEffort, InvalidCommit, NoOp, IllegalProbe}

// Valid reports whether p is in the closed set.
func (p Primitive) Valid() bool {
	for _, q := range Primitives {
		if p == q {
			return true
		}
	}
	return false
}

// action expands p into the cycle's emission. COMPLIANT defers to the
// wrapped mind so a compliant adversary is indistinguishable from none.
func (p Primitive) action(inner mind.WorkingMind, obs mind.Observation) mind.Action {
	switch p {
	case MinEffort:
		return mind.MinimalPlan(obs)
	case InvalidCommit:
		return mind.InvalidCommitPlan(obs)
	case NoOp:
		return mind.Wait()
	case IllegalProbe:
		if obs.CycleInEpoch == 0 {
			return mind.Action{Type: mind.ActionInvokeTool}
		}
		return inner.ProposeAction(obs)
	default:
		return inner.ProposeAction(obs)
	}
}
