package rsa

import (
	"fmt"

	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// Witness is a pair of states that act differently on one observable.
type Witness struct {
	Observables mind.Observables `json:"observables"`
	StateA      int              `json:"state_a"`
	StateB      int              `json:"state_b"`
	ActionA     Primitive        `json:"action_a"`
	ActionB     Primitive        `json:"action_b"`
}

// AuditReport is the startup audit of a model.
type AuditReport struct {
	Model          string   `json:"model"`
	States         int      `json:"states"`
	Combinations   int      `json:"combinations"`
	Total          bool     `json:"total"`
	Stateful       bool     `json:"stateful"`
	Differentiated bool     `json:"differentiated"`
	Witness        *Witness `json:"witness,omitempty"`
	Failure        string   `json:"failure,omitempty"`
}

// Audit checks totality over every (observables, state) pair and, for
// stateful models, static differentiation. A failed audit is a
// configuration error.
func Audit(m Model) (AuditReport, error) {
	n := m.NumStates()
	r := AuditReport{Model: m.Name(), States: n, Stateful: n > 1}
	if n < 1 || m.Initial() < 0 || m.Initial() >= n {
		r.Failure = fmt.Sprintf("state space %d with initial %d", n, m.Initial())
		return r, kernel.NewConfigError(kernel.ErrConfigAdversary, "adversary.model", "%s: %s", r.Model, r.Failure)
	}
	all := mind.AllObservables()
	for _, obs := range all {
		var first Primitive
		for s := 0; s < n; s++ {
			r.Combinations++
			p, next, err := probe(m, obs, s)
			if err == nil && !p.Valid() {
				err = fmt.Errorf("invalid primitive %q", p)
			}
			if err == nil && (next < 0 || next >= n) {
				err = fmt.Errorf("next state %d out of range", next)
			}
			if err != nil {
				r.Failure = fmt.Sprintf("obs=%+v state=%d: %v", obs, s, err)
				return r, kernel.NewConfigError(kernel.ErrConfigAdversary, "adversary.model", "%s not total: %s", r.Model, r.Failure)
			}
			if s == 0 {
				first = p
			} else if p != first && r.Witness == nil {
				r.Witness = &Witness{Observables: obs, StateA: 0, StateB: s, ActionA: first, ActionB: p}
			}
		}
	}
	r.Total = true
	r.Differentiated = r.Witness != nil
	if r.Stateful && !r.Differentiated {
		r.Failure = "no observable distinguishes any two states"
		return r, kernel.NewConfigError(kernel.ErrConfigAdversary, "adversary.model", "%s: %s", r.Model, r.Failure)
	}
	return r, nil
}

func probe(m Model, obs mind.Observables, s int) (p Primitive, next int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return m.Act(obs, s), m.Step(obs, s), nil
}
