package rsa

import (
	"log/slog"
	"sort"

	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// Controller drives one model for a whole run. Its state is shared by every
// wrapped instance and reset only by building a new Controller.
type Controller struct {
	model   Model
	learner Learner
	audit   AuditReport

	state      int
	current    Primitive
	epochs     int
	visited    map[int]int
	primitives map[Primitive]int
	noops      int

	logger *slog.Logger
}

// NewController audits model and prepares it for a run seeded by rootSeed.
func NewController(model Model, rootSeed []byte) (*Controller, error) {
	report, err := Audit(model)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		model:      model,
		audit:      report,
		state:      model.Initial(),
		current:    Compliant,
		visited:    make(map[int]int),
		primitives: make(map[Primitive]int),
		logger:     slog.Default().With("component", "rsa", "model", model.Name()),
	}
	if l, ok := model.(Learner); ok {
		c.learner = l
		l.Reset(kernel.NewStream(rootSeed, kernel.StreamRSA, model.Name()))
	}
	return c, nil
}

// ObserveEpoch implements mind.EpochObserver: it fixes this epoch's
// primitive from (observables, S) and advances S.
func (c *Controller) ObserveEpoch(epoch int64, obs mind.Observables) {
	c.epochs++
	c.visited[c.state]++
	c.current = c.model.Act(obs, c.state)
	c.primitives[c.current]++
	prev := c.state
	if c.learner != nil {
		c.state = c.learner.Learn(obs, c.state)
	} else {
		c.state = c.model.Step(obs, c.state)
	}
	if c.state != prev {
		c.logger.Debug("adversary state change", "epoch", epoch, "from", prev, "to", c.state)
	}
}

// Current returns the primitive in force for the current epoch.
func (c *Controller) Current() Primitive { return c.current }

// Wrap is a mind.Wrapper substituting the adversary into the working-mind
// slot. The manifest is the inner mind's.
func (c *Controller) Wrap(policyID string, m mind.WorkingMind) mind.WorkingMind {
	return &adversaryMind{inner: m, ctl: c, policyID: policyID}
}

type adversaryMind struct {
	inner    mind.WorkingMind
	ctl      *Controller
	policyID string
}

func (a *adversaryMind) Manifest() mind.Manifest { return a.inner.Manifest() }

func (a *adversaryMind) RequestRenewal(epoch int64) bool { return a.inner.RequestRenewal(epoch) }

func (a *adversaryMind) RelayAttestation(epoch int64, token string) string {
	return a.inner.RelayAttestation(epoch, token)
}

// ProposeAction emits the current primitive's action. Emissions the
// manifest does not declare become logged WAITs.
func (a *adversaryMind) ProposeAction(obs mind.Observation) mind.Action {
	act := a.ctl.current.action(a.inner, obs)
	if act.Type != mind.ActionWait && !a.inner.Manifest().Interface.Allows(act.Type) {
		a.ctl.noops++
		a.ctl.logger.Debug("adversary emission dropped", "policy_id", a.policyID, "cycle", obs.Cycle, "action_type", act.Type)
		return mind.Wait()
	}
	return act
}

// Report summarises the adversary's run.
type Report struct {
	Model         string            `json:"model"`
	Audit         AuditReport       `json:"audit"`
	Epochs        int               `json:"epochs"`
	StatesVisited []int             `json:"states_visited"`
	Primitives    map[Primitive]int `json:"primitives"`
	DroppedNoOps  int               `json:"dropped_noops"`
	Theta         []int             `json:"theta,omitempty"`
	// Rejected is set when a stateful model visited fewer than two states.
	Rejected bool `json:"rejected"`
}

// Report returns the adversary summary including the exercised-state check.
func (c *Controller) Report() Report {
	states := make([]int, 0, len(c.visited))
	for s := range c.visited {
		states = append(states, s)
	}
	sort.Ints(states)
	prims := make(map[Primitive]int, len(c.primitives))
	for p, n := range c.primitives {
		prims[p] = n
	}
	r := Report{
		Model:         c.model.Name(),
		Audit:         c.audit,
		Epochs:        c.epochs,
		StatesVisited: states,
		Primitives:    prims,
		DroppedNoOps:  c.noops,
		Rejected:      c.audit.Stateful && len(states) < 2,
	}
	if c.learner != nil {
		r.Theta = c.learner.Theta()
	}
	return r
}
