// Package mind defines the working-mind contract: the actions a successor may
// emit, the capability manifest it declares at endorsement time, and the
// concrete successor variants the generator can instantiate.
package mind

import "sort"

// ActionType is the structural type of an action. The Sentinel inspects only
// the type, never the payload.
type ActionType string

const (
	ActionWait        ActionType = "WAIT"
	ActionLog         ActionType = "LOG"
	ActionCommit      ActionType = "COMMIT"
	ActionStateSet    ActionType = "STATE_SET"
	ActionStateGet    ActionType = "STATE_GET"
	ActionSequence    ActionType = "SEQUENCE"
	ActionBatch       ActionType = "BATCH"
	ActionInvokeTool  ActionType = "INVOKE_TOOL"
	ActionOrchestrate ActionType = "ORCHESTRATE"
	ActionSpawn       ActionType = "SPAWN"
	ActionDelegate    ActionType = "DELEGATE"
)

// CapabilityGroup is a named bundle of action types. Expressivity class is
// derived from group membership alone.
type CapabilityGroup string

const (
	GroupBasic         CapabilityGroup = "basic"
	GroupState         CapabilityGroup = "state"
	GroupSequence      CapabilityGroup = "sequence"
	GroupExternal      CapabilityGroup = "external"
	GroupOrchestration CapabilityGroup = "orchestration"
)

var groupActions = map[CapabilityGroup][]ActionType{
	GroupBasic:         {ActionWait, ActionLog, ActionCommit},
	GroupState:         {ActionStateSet, ActionStateGet},
	GroupSequence:      {ActionSequence, ActionBatch},
	GroupExternal:      {ActionInvokeTool},
	GroupOrchestration: {ActionOrchestrate},
}

var stepCosts = map[ActionType]int{
	ActionWait:        0,
	ActionLog:         1,
	ActionCommit:      1,
	ActionStateSet:    1,
	ActionStateGet:    1,
	ActionSequence:    2,
	ActionBatch:       2,
	ActionInvokeTool:  3,
	ActionOrchestrate: 4,
	ActionSpawn:       0,
	ActionDelegate:    0,
}

// Action is one emission from the working-mind slot.
type Action struct {
	Type   ActionType `json:"type"`
	Key    string     `json:"key,omitempty"`
	Ops    int        `json:"ops,omitempty"`
	SpecID string     `json:"spec_id,omitempty"`
}

// Wait is the no-op action.
func Wait() Action { return Action{Type: ActionWait} }

// StepCost returns the step cost of an action type; unknown types cost 0 and
// are rejected by the Sentinel on type alone.
func StepCost(t ActionType) int {
	return stepCosts[t]
}

// ActionCost is the step cost of a. Composed actions pay one extra step per
// op beyond two.
func ActionCost(a Action) int {
	c := StepCost(a.Type)
	if (a.Type == ActionSequence || a.Type == ActionBatch) && a.Ops > 2 {
		c += a.Ops - 2
	}
	return c
}

// KnownActionType reports whether t is part of the closed action vocabulary.
func KnownActionType(t ActionType) bool {
	_, ok := stepCosts[t]
	return ok
}

// IsDelegation reports whether t would create new authority.
func IsDelegation(t ActionType) bool {
	return t == ActionSpawn || t == ActionDelegate
}

// IsExternal reports whether t counts against the external-call cap.
func IsExternal(t ActionType) bool {
	return t == ActionInvokeTool
}

// KnownGroup reports whether g is a declared capability group.
func KnownGroup(g CapabilityGroup) bool {
	_, ok := groupActions[g]
	return ok
}

// GroupActions returns the action types of a capability group.
func GroupActions(g CapabilityGroup) []ActionType {
	return append([]ActionType(nil), groupActions[g]...)
}

// InterfaceFor builds an interface declaring exactly the given groups.
func InterfaceFor(groups ...CapabilityGroup) Interface {
	seen := map[ActionType]bool{}
	var types []ActionType
	for _, g := range groups {
		for _, t := range groupActions[g] {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	gs := append([]CapabilityGroup(nil), groups...)
	sort.Slice(gs, func(i, j int) bool { return gs[i] < gs[j] })
	return Interface{ActionTypes: types, Groups: gs}
}
