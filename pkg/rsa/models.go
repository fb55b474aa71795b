package rsa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// Model is an adversary policy over a finite state space [0, NumStates).
// Act and Step must be total over every observable bucket and state.
type Model interface {
	Name() string
	NumStates() int
	Initial() int
	Act(obs mind.Observables, s int) Primitive
	Step(obs mind.Observables, s int) int
}

// Learner is a Model with a bounded integer learning state Θ. Learn
// replaces Step when the controller drives a learner.
type Learner interface {
	Model
	Reset(prng *kernel.DeterministicPRNG)
	Learn(obs mind.Observables, s int) int
	Theta() []int
}

// fixedModel emits one primitive whatever it observes.
type fixedModel struct {
	name string
	p    Primitive
}

func (m fixedModel) Name() string                        { return m.name }
func (m fixedModel) NumStates() int                      { return 1 }
func (m fixedModel) Initial() int                        { return 0 }
func (m fixedModel) Act(mind.Observables, int) Primitive { return m.p }
func (m fixedModel) Step(mind.Observables, int) int      { return 0 }

// edgeOscillator alternates effort while the holder sits one failure from
// ineligibility. State 0 shirks, state 1 complies.
type edgeOscillator struct{}

func (edgeOscillator) Name() string   { return "edge_oscillator" }
func (edgeOscillator) NumStates() int { return 2 }
func (edgeOscillator) Initial() int   { return 0 }

func (edgeOscillator) Act(obs mind.Observables, s int) Primitive {
	if obs.Eligibility == mind.EligibilityEdge && s == 0 {
		return MinEffort
	}
	return Compliant
}

func (edgeOscillator) Step(obs mind.Observables, s int) int {
	if obs.Eligibility == mind.EligibilityEdge {
		return 1 - s
	}
	return 0
}

// ctaPhaseLocker remembers the last CTA phase and sabotages commitments on
// the first epoch of every phase change.
type ctaPhaseLocker struct{}

var ctaPhases = []mind.CTAPhase{mind.CTAInactive, mind.CTAEarly, mind.CTAMid, mind.CTALate}

func phaseIndex(p mind.CTAPhase) int {
	for i, q := range ctaPhases {
		if p == q {
			return i
		}
	}
	return 0
}

func (ctaPhaseLocker) Name() string   { return "cta_phase_locker" }
func (ctaPhaseLocker) NumStates() int { return len(ctaPhases) }
func (ctaPhaseLocker) Initial() int   { return 0 }

func (ctaPhaseLocker) Act(obs mind.Observables, s int) Primitive {
	if phaseIndex(obs.CTA) != s {
		return InvalidCommit
	}
	return Compliant
}

func (ctaPhaseLocker) Step(obs mind.Observables, _ int) int { return phaseIndex(obs.CTA) }

// renewalFeedback counts consecutive renewal successes (saturating at 2)
// and eases off once renewal looks assured.
type renewalFeedback struct{}

func (renewalFeedback) Name() string   { return "renewal_feedback" }
func (renewalFeedback) NumStates() int { return 3 }
func (renewalFeedback) Initial() int   { return 0 }

func (renewalFeedback) Act(obs mind.Observables, s int) Primitive {
	switch {
	case s >= 2:
		return MinEffort
	case obs.Renewal == mind.RenewalFailed:
		return NoOp
	default:
		return Compliant
	}
}

func (renewalFeedback) Step(obs mind.Observables, s int) int {
	switch obs.Renewal {
	case mind.RenewalSucceeded:
		if s < 2 {
			return s + 1
		}
		return 2
	case mind.RenewalFailed:
		return 0
	default:
		return s
	}
}

// learningBandit plays one arm per epoch. Θ holds a bounded score per arm,
// rewarded while authority holds and renewal succeeds.
type learningBandit struct {
	arms     []Primitive
	thetaMax int
	explore  int // explore with probability 1/explore
	theta    []int
	prng     *kernel.DeterministicPRNG
}

func newLearningBandit() *learningBandit {
	arms := []Primitive{Compliant, MinEffort, InvalidCommit, NoOp}
	return &learningBandit{arms: arms, thetaMax: 15, explore: 8, theta: make([]int, len(arms))}
}

func (m *learningBandit) Name() string   { return "learning_bandit" }
func (m *learningBandit) NumStates() int { return len(m.arms) }
func (m *learningBandit) Initial() int   { return 0 }

func (m *learningBandit) Act(_ mind.Observables, s int) Primitive {
	if s < 0 || s >= len(m.arms) {
		return Compliant
	}
	return m.arms[s]
}

// Step is the greedy policy without learning; used by the audit.
func (m *learningBandit) Step(_ mind.Observables, _ int) int { return m.best() }

func (m *learningBandit) Reset(prng *kernel.DeterministicPRNG) {
	m.prng = prng
	m.theta = make([]int, len(m.arms))
}

func (m *learningBandit) Learn(obs mind.Observables, s int) int {
	if s >= 0 && s < len(m.theta) {
		if obs.Authority == mind.AuthorityActive && obs.Renewal == mind.RenewalSucceeded {
			if m.theta[s] < m.thetaMax {
				m.theta[s]++
			}
		} else if m.theta[s] > 0 {
			m.theta[s]--
		}
	}
	if m.prng != nil && m.prng.Intn(m.explore) == 0 {
		return m.prng.Intn(len(m.arms))
	}
	return m.best()
}

func (m *learningBandit) Theta() []int { return append([]int(nil), m.theta...) }

// best is argmax Θ with ties to the lowest arm.
func (m *learningBandit) best() int {
	best := 0
	for i, v := range m.theta {
		if v > m.theta[best] {
			best = i
		}
	}
	return best
}

var statefulModels = map[string]func() Model{
	"edge_oscillator":  func() Model { return edgeOscillator{} },
	"cta_phase_locker": func() Model { return ctaPhaseLocker{} },
	"renewal_feedback": func() Model { return renewalFeedback{} },
	"learning_bandit":  func() Model { return newLearningBandit() },
}

// ParseModel resolves a model name: "noop", "fixed:<PRIMITIVE>", or one of
// the stateful models.
func ParseModel(name string) (Model, error) {
	switch {
	case name == "" || name == "noop":
		return fixedModel{name: "noop", p: Compliant}, nil
	case strings.HasPrefix(name, "fixed:"):
		p := Primitive(strings.ToUpper(strings.TrimPrefix(name, "fixed:")))
		if !p.Valid() {
			return nil, kernel.NewConfigError(kernel.ErrConfigAdversary, "adversary.model", "unknown primitive %q", p)
		}
		return fixedModel{name: "fixed:" + string(p), p: p}, nil
	}
	if f, ok := statefulModels[name]; ok {
		return f(), nil
	}
	return nil, kernel.NewConfigError(kernel.ErrConfigAdversary, "adversary.model", "unknown model %q", name)
}

// ModelNames lists every parseable model name.
func ModelNames() []string {
	names := []string{"noop"}
	for _, p := range Primitives {
		names = append(names, fmt.Sprintf("fixed:%s", p))
	}
	var stateful []string
	for n := range statefulModels {
		stateful = append(stateful, n)
	}
	sort.Strings(stateful)
	return append(names, stateful...)
}
