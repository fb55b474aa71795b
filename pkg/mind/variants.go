package mind

import (
	"fmt"
	"sort"
	"strings"
)

// Variant describes one successor policy class.
type Variant struct {
	Category string
	Name     string
	Groups   []CapabilityGroup
	// Extra action types declared beyond the groups (used by malformed
	// variants to declare delegation).
	Extra []ActionType
	// Steps overrides the declared per-epoch step budget when positive.
	Steps int
	// Malform damages the LCP after construction.
	Malform func(*LCP)
	build   func(b *base) WorkingMind
}

// PolicyID returns the variant's stable identity.
func (v Variant) PolicyID() string { return PolicyID(v.Category, v.Name) }

var registry = map[string]Variant{}

func register(v Variant) {
	registry[v.PolicyID()] = v
}

// Lookup returns the variant registered under policyID.
func Lookup(policyID string) (Variant, bool) {
	v, ok := registry[PolicyID(splitPolicy(policyID))]
	return v, ok
}

// Variants lists registered policy ids in sorted order.
func Variants() []string {
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func splitPolicy(id string) (string, string) {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return id[:i], id[i+1:]
		}
	}
	return id, ""
}

// Manifest builds the class manifest for this variant given default caps.
func (v Variant) Manifest(defaults ResourceEnvelope) Manifest {
	iface := InterfaceFor(v.Groups...)
	if len(v.Extra) > 0 {
		iface.ActionTypes = append(iface.ActionTypes, v.Extra...)
	}
	res := defaults
	if v.Steps > 0 {
		res.StepsPerEpoch = v.Steps
	}
	id := v.PolicyID()
	return Manifest{
		PolicyID:        id,
		BuildCommitment: BuildCommitment(id, iface, res),
		Interface:       iface,
		Resources:       res,
	}
}

// New instantiates a fresh working mind of this variant.
func (v Variant) New(defaults ResourceEnvelope, params Params) (WorkingMind, LCP) {
	m := v.Manifest(defaults)
	lcp := NewLCP(m)
	if v.Malform != nil {
		v.Malform(&lcp)
	}
	if params == nil {
		params = Params{}
	}
	return v.build(&base{manifest: m, params: params}), lcp
}

// RuntimeCommitSpec is the spec requested by minds that take on runtime
// commitments.
const RuntimeCommitSpec = "CMT_PRESENCE_LOG"

var coreGroups = []CapabilityGroup{GroupBasic, GroupState, GroupSequence}
var allGroups = []CapabilityGroup{GroupBasic, GroupState, GroupSequence, GroupExternal, GroupOrchestration}

func init() {
	register(Variant{Category: "control", Name: "compliant", Groups: coreGroups,
		build: func(b *base) WorkingMind { return &compliantMind{base: b} }})
	register(Variant{Category: "control", Name: "minimal", Groups: coreGroups,
		build: func(b *base) WorkingMind { return &planMind{base: b, plan: MinimalPlan} }})
	register(Variant{Category: "control", Name: "idle", Groups: []CapabilityGroup{GroupBasic},
		build: func(b *base) WorkingMind { return &planMind{base: b, plan: func(Observation) Action { return Wait() }} }})
	register(Variant{Category: "cbd", Name: "greedy", Groups: allGroups,
		build: func(b *base) WorkingMind { return &greedyMind{base: b} }})
	register(Variant{Category: "attack", Name: "violator", Groups: coreGroups,
		build: func(b *base) WorkingMind {
			return &triggerMind{base: b, after: b.params.Get("violate_after_epochs", 2),
				bad: func(Observation) Action { return Action{Type: ActionInvokeTool} }}
		}})
	register(Variant{Category: "attack", Name: "spawner", Groups: coreGroups,
		build: func(b *base) WorkingMind {
			return &triggerMind{base: b, after: b.params.Get("violate_after_epochs", 2),
				bad: func(Observation) Action { return Action{Type: ActionSpawn} }}
		}})
	register(Variant{Category: "attack", Name: "overrun", Groups: coreGroups,
		build: func(b *base) WorkingMind {
			return &triggerMind{base: b, after: b.params.Get("violate_after_epochs", 2),
				bad: func(Observation) Action { return Action{Type: ActionSequence, Ops: 8} }, everyCycle: true}
		}})
	register(Variant{Category: "attack", Name: "shirker", Groups: coreGroups,
		build: func(b *base) WorkingMind {
			return &triggerMind{base: b, after: b.params.Get("violate_after_epochs", 2),
				bad: func(Observation) Action { return Wait() }, everyCycle: true}
		}})
	register(Variant{Category: "attack", Name: "abstainer", Groups: coreGroups,
		build: func(b *base) WorkingMind { return &abstainerMind{compliantMind{base: b}} }})
	register(Variant{Category: "attack", Name: "forger", Groups: coreGroups,
		build: func(b *base) WorkingMind { return &forgerMind{compliantMind{base: b}} }})
	register(Variant{Category: "attack", Name: "replayer", Groups: coreGroups,
		build: func(b *base) WorkingMind { return &replayerMind{compliantMind: compliantMind{base: b}} }})
	register(Variant{Category: "attack", Name: "bankrupt", Groups: allGroups, Steps: 2,
		build: func(b *base) WorkingMind { return &compliantMind{base: b} }})
	register(Variant{Category: "malformed", Name: "no_proof", Groups: coreGroups,
		Malform: func(l *LCP) { l.RevocationHookProof = "" },
		build:   func(b *base) WorkingMind { return &compliantMind{base: b} }})
	register(Variant{Category: "malformed", Name: "delegator", Groups: coreGroups, Extra: []ActionType{ActionDelegate},
		build: func(b *base) WorkingMind { return &compliantMind{base: b} }})
}

// compliantMind follows CompliantPlan and, when commit_every_epochs is set,
// requests a runtime presence commitment on those epochs.
type compliantMind struct {
	*base
}

func (m *compliantMind) ProposeAction(obs Observation) Action {
	held := m.heldEpochs(obs.Epoch)
	every := m.params.Get("commit_every_epochs", 0)
	if every > 0 && obs.CycleInEpoch == 4 && held%int64(every) == 0 {
		return affordable(Action{Type: ActionCommit, SpecID: RuntimeCommitSpec}, obs)
	}
	return CompliantPlan(obs)
}

type planMind struct {
	*base
	plan func(Observation) Action
}

func (m *planMind) ProposeAction(obs Observation) Action {
	m.heldEpochs(obs.Epoch)
	return m.plan(obs)
}

// greedyMind is compliant but spends its remaining budget on external tool
// calls and orchestration.
type greedyMind struct {
	*base
}

func (m *greedyMind) ProposeAction(obs Observation) Action {
	if obs.CycleInEpoch < 4 {
		return CompliantPlan(obs)
	}
	if a := affordable(Action{Type: ActionInvokeTool}, obs); a.Type != ActionWait {
		return a
	}
	return affordable(Action{Type: ActionOrchestrate}, obs)
}

// triggerMind behaves compliantly for `after` epochs, then emits bad on
// the first cycle of each later epoch (or every cycle when everyCycle).
type triggerMind struct {
	*base
	after      int
	bad        func(Observation) Action
	everyCycle bool
}

func (m *triggerMind) ProposeAction(obs Observation) Action {
	if m.heldEpochs(obs.Epoch) >= int64(m.after) && (m.everyCycle || obs.CycleInEpoch == 0) {
		return m.bad(obs)
	}
	return CompliantPlan(obs)
}

type abstainerMind struct {
	compliantMind
}

func (m *abstainerMind) RequestRenewal(int64) bool { return false }

// forgerMind alters the signature of every attestation it relays.
type forgerMind struct {
	compliantMind
}

func (m *forgerMind) RelayAttestation(_ int64, token string) string {
	i := strings.LastIndexByte(token, '.')
	if i < 0 || i+1 >= len(token) {
		return token + "A"
	}
	b := []byte(token)
	if b[i+1] == 'A' {
		b[i+1] = 'B'
	} else {
		b[i+1] = 'A'
	}
	return string(b)
}

// replayerMind keeps the first attestation it is handed and submits it at
// every later renewal.
type replayerMind struct {
	compliantMind
	kept string
}

func (m *replayerMind) RelayAttestation(_ int64, token string) string {
	if m.kept == "" {
		m.kept = token
	}
	return m.kept
}

// String renders a variant for logs.
func (v Variant) String() string {
	return fmt.Sprintf("%s (%v)", v.PolicyID(), v.Groups)
}
