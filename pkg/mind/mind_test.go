package mind_test

import (
	"testing"

	"github.com/macterra/Axio-sub003/pkg/canonicalize"
	"github.com/macterra/Axio-sub003/pkg/mind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = mind.ResourceEnvelope{StepsPerEpoch: 100, ActionsPerEpoch: 20, ExternalCallsPerEpoch: 4, MemoryCells: 16}

func obsAt(epoch int64, cycleInEpoch int) mind.Observation {
	return mind.Observation{
		Cycle:                  epoch*10 + int64(cycleInEpoch),
		Epoch:                  epoch,
		CycleInEpoch:           cycleInEpoch,
		CyclesPerEpoch:         10,
		StepsRemaining:         50,
		ActionsRemaining:       10,
		ExternalCallsRemaining: 2,
	}
}

func TestPolicyIdentityStableAcrossInstances(t *testing.T) {
	gen, err := mind.NewPoolGenerator([]mind.CandidateSpec{
		{Category: "control", Variant: "compliant"},
		{Category: "attack", Variant: "violator", Weight: 3},
	}, defaults)
	require.NoError(t, err)

	first := gen.Propose(0)
	second := gen.Propose(100)
	require.Len(t, first, 2)
	require.Len(t, second, 2)

	for i := range first {
		assert.Equal(t, first[i].PolicyID(), second[i].PolicyID())
		assert.Equal(t, first[i].LCP.Manifest.BuildCommitment, second[i].LCP.Manifest.BuildCommitment)
		assert.NotSame(t, first[i].Mind, second[i].Mind)
	}
	assert.Equal(t, "control:compliant", first[0].PolicyID())
	assert.Equal(t, 1, first[0].Weight)
	assert.Equal(t, 3, first[1].Weight)
	assert.Equal(t, 2, gen.Proposals())
	assert.True(t, canonicalize.IsDigest(first[0].LCP.Manifest.BuildCommitment))
}

func TestNewPoolGenerator_Errors(t *testing.T) {
	_, err := mind.NewPoolGenerator(nil, defaults)
	assert.Error(t, err)

	_, err = mind.NewPoolGenerator([]mind.CandidateSpec{{Category: "control", Variant: "nope"}}, defaults)
	assert.ErrorContains(t, err, "control:nope")
}

func TestGeneratorWrapper(t *testing.T) {
	gen, err := mind.NewPoolGenerator([]mind.CandidateSpec{{Category: "control", Variant: "compliant"}}, defaults)
	require.NoError(t, err)

	var wrapped []string
	gen.WithWrapper(func(policyID string, m mind.WorkingMind) mind.WorkingMind {
		wrapped = append(wrapped, policyID)
		return m
	})
	gen.Propose(0)
	assert.Equal(t, []string{"control:compliant"}, wrapped)
}

func TestCompliantPlan(t *testing.T) {
	assert.Equal(t, mind.ActionLog, mind.CompliantPlan(obsAt(3, 0)).Type)
	set := mind.CompliantPlan(obsAt(3, 1))
	get := mind.CompliantPlan(obsAt(3, 2))
	assert.Equal(t, mind.ActionStateSet, set.Type)
	assert.Equal(t, mind.ActionStateGet, get.Type)
	assert.Equal(t, set.Key, get.Key)
	assert.Equal(t, mind.Action{Type: mind.ActionSequence, Ops: 2}, mind.CompliantPlan(obsAt(3, 3)))
	assert.Equal(t, mind.ActionWait, mind.CompliantPlan(obsAt(3, 7)).Type)
}

func TestPlansRespectBudget(t *testing.T) {
	o := obsAt(0, 3)
	o.StepsRemaining = 1
	assert.Equal(t, mind.ActionWait, mind.CompliantPlan(o).Type, "SEQUENCE costs 2")

	o = obsAt(0, 0)
	o.ActionsRemaining = 0
	assert.Equal(t, mind.ActionWait, mind.CompliantPlan(o).Type)
}

func TestViolatorTriggersAfterEpochs(t *testing.T) {
	v, ok := mind.Lookup("attack:violator")
	require.True(t, ok)
	m, lcp := v.New(defaults, mind.Params{"violate_after_epochs": 2})
	assert.False(t, lcp.Manifest.Interface.Allows(mind.ActionInvokeTool))

	assert.Equal(t, mind.ActionLog, m.ProposeAction(obsAt(5, 0)).Type)
	assert.Equal(t, mind.ActionLog, m.ProposeAction(obsAt(6, 0)).Type)
	assert.Equal(t, mind.ActionInvokeTool, m.ProposeAction(obsAt(7, 0)).Type)
	assert.Equal(t, mind.ActionStateSet, m.ProposeAction(obsAt(7, 1)).Type)
}

func TestShirkerGoesIdle(t *testing.T) {
	v, ok := mind.Lookup("attack:shirker")
	require.True(t, ok)
	m, _ := v.New(defaults, mind.Params{"violate_after_epochs": 1})
	assert.Equal(t, mind.ActionLog, m.ProposeAction(obsAt(0, 0)).Type)
	for c := 0; c < 4; c++ {
		assert.Equal(t, mind.ActionWait, m.ProposeAction(obsAt(1, c)).Type)
	}
}

func TestAbstainerDeclinesRenewal(t *testing.T) {
	v, ok := mind.Lookup("attack:abstainer")
	require.True(t, ok)
	m, _ := v.New(defaults, nil)
	assert.False(t, m.RequestRenewal(1))
	assert.Equal(t, mind.ActionLog, m.ProposeAction(obsAt(0, 0)).Type)

	c, _ := mind.Lookup("control:compliant")
	cm, _ := c.New(defaults, nil)
	assert.True(t, cm.RequestRenewal(1))
}

func TestAttestationRelay(t *testing.T) {
	const token = "aaa.bbb.ccc"

	c, _ := mind.Lookup("control:compliant")
	cm, _ := c.New(defaults, nil)
	assert.Equal(t, token, cm.RelayAttestation(0, token))

	f, ok := mind.Lookup("attack:forger")
	require.True(t, ok)
	fm, _ := f.New(defaults, nil)
	assert.Equal(t, "aaa.bbb.Acc", fm.RelayAttestation(0, token))
	assert.Equal(t, "aaa.bbb.Bcc", fm.RelayAttestation(1, "aaa.bbb.Acc"))

	r, ok := mind.Lookup("attack:replayer")
	require.True(t, ok)
	rm, _ := r.New(defaults, nil)
	assert.Equal(t, token, rm.RelayAttestation(0, token))
	assert.Equal(t, token, rm.RelayAttestation(1, "fresh"))
	assert.True(t, rm.RequestRenewal(1))
}

func TestCompliantRuntimeCommitRequest(t *testing.T) {
	v, _ := mind.Lookup("control:compliant")
	m, _ := v.New(defaults, mind.Params{"commit_every_epochs": 2})

	a := m.ProposeAction(obsAt(0, 4))
	assert.Equal(t, mind.ActionCommit, a.Type)
	assert.Equal(t, mind.RuntimeCommitSpec, a.SpecID)
	assert.Equal(t, mind.ActionWait, m.ProposeAction(obsAt(1, 4)).Type)
	assert.Equal(t, mind.ActionCommit, m.ProposeAction(obsAt(2, 4)).Type)
}

func TestMalformedVariants(t *testing.T) {
	v, _ := mind.Lookup("malformed:no_proof")
	_, lcp := v.New(defaults, nil)
	assert.Empty(t, lcp.RevocationHookProof)

	d, _ := mind.Lookup("malformed:delegator")
	_, lcp = d.New(defaults, nil)
	assert.True(t, lcp.Manifest.Interface.Allows(mind.ActionDelegate))

	b, _ := mind.Lookup("attack:bankrupt")
	_, lcp = b.New(defaults, nil)
	assert.Equal(t, 2, lcp.Manifest.Resources.StepsPerEpoch)
	assert.True(t, lcp.Manifest.Interface.HasGroup(mind.GroupOrchestration))
}

func TestVariantsListed(t *testing.T) {
	ids := mind.Variants()
	assert.Contains(t, ids, "control:compliant")
	assert.Contains(t, ids, "cbd:greedy")
	assert.IsIncreasing(t, ids)
}

func TestAllObservablesComplete(t *testing.T) {
	all := mind.AllObservables()
	assert.Len(t, all, 2*2*3*4*3)

	seen := map[mind.Observables]bool{}
	for _, o := range all {
		seen[o] = true
	}
	assert.Len(t, seen, len(all))
}

func TestBucketEligibility(t *testing.T) {
	assert.Equal(t, mind.EligibilitySafe, mind.BucketEligibility(0, 3))
	assert.Equal(t, mind.EligibilitySafe, mind.BucketEligibility(1, 3))
	assert.Equal(t, mind.EligibilityEdge, mind.BucketEligibility(2, 3))
	assert.Equal(t, mind.EligibilityIneligible, mind.BucketEligibility(3, 3))
	assert.Equal(t, mind.EligibilityIneligible, mind.BucketEligibility(7, 3))
}

func TestBucketCTA(t *testing.T) {
	assert.Equal(t, mind.CTAInactive, mind.BucketCTA(false, 4, 10))
	assert.Equal(t, mind.CTAInactive, mind.BucketCTA(true, 4, 0))
	assert.Equal(t, mind.CTAEarly, mind.BucketCTA(true, 0, 10))
	assert.Equal(t, mind.CTAEarly, mind.BucketCTA(true, 3, 10))
	assert.Equal(t, mind.CTAMid, mind.BucketCTA(true, 4, 10))
	assert.Equal(t, mind.CTAMid, mind.BucketCTA(true, 6, 10))
	assert.Equal(t, mind.CTALate, mind.BucketCTA(true, 7, 10))
	assert.Equal(t, mind.CTAEarly, mind.BucketCTA(true, 10, 10))
}

func TestActionCost(t *testing.T) {
	assert.Equal(t, 0, mind.ActionCost(mind.Wait()))
	assert.Equal(t, 1, mind.ActionCost(mind.Action{Type: mind.ActionLog}))
	assert.Equal(t, 2, mind.ActionCost(mind.Action{Type: mind.ActionSequence, Ops: 2}))
	assert.Equal(t, 8, mind.ActionCost(mind.Action{Type: mind.ActionSequence, Ops: 8}))
	assert.Equal(t, 3, mind.ActionCost(mind.Action{Type: mind.ActionInvokeTool}))
}

type recordingObserver struct{ epochs []int64 }

func (r *recordingObserver) ObserveEpoch(epoch int64, _ mind.Observables) {
	r.epochs = append(r.epochs, epoch)
}

func TestGeneratorForwardsObservables(t *testing.T) {
	gen, err := mind.NewPoolGenerator([]mind.CandidateSpec{{Category: "control", Variant: "compliant"}}, defaults)
	require.NoError(t, err)
	rec := &recordingObserver{}
	gen.WithObserver(rec)

	var o mind.EpochObserver = gen
	o.ObserveEpoch(0, mind.Observables{})
	o.ObserveEpoch(1, mind.Observables{})
	assert.Equal(t, []int64{0, 1}, rec.epochs)
}
