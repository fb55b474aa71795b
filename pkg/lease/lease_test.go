package lease

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macterra/Axio-sub003/pkg/expressivity"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

var defaults = mind.ResourceEnvelope{StepsPerEpoch: 100, ActionsPerEpoch: 10, ExternalCallsPerEpoch: 1, MemoryCells: 8}

func lcpFor(t *testing.T, policyID string) mind.LCP {
	t.Helper()
	v, ok := mind.Lookup(policyID)
	require.True(t, ok, policyID)
	_, lcp := v.New(defaults, nil)
	return lcp
}

func activeLease(t *testing.T, policyID string, maxRenewals int) *Lease {
	t.Helper()
	l := New("lease-1", lcpFor(t, policyID), 0, 0, maxRenewals, 80)
	require.NoError(t, l.Activate())
	return l
}

func TestNew_BudgetCappedAndClassified(t *testing.T) {
	l := New("lease-1", lcpFor(t, "control:compliant"), 5, 1, 3, 80)
	assert.Equal(t, StatusPending, l.Status)
	assert.Equal(t, 80, l.Budget.StepsPerEpoch)
	assert.Equal(t, expressivity.E2, l.EClass)

	b := New("lease-2", lcpFor(t, "attack:bankrupt"), 5, 1, 3, 80)
	assert.Equal(t, 2, b.Budget.StepsPerEpoch)
	assert.Equal(t, expressivity.E4, b.EClass)
}

func TestLeaseTransitions(t *testing.T) {
	l := activeLease(t, "control:compliant", 2)
	assert.True(t, l.IsActive())

	require.NoError(t, l.Renew())
	require.NoError(t, l.Renew())
	assert.False(t, l.CanRenew())
	require.Error(t, l.Renew())
	assert.Equal(t, 2, l.RenewalCount)

	require.NoError(t, l.Expire(40, ExpireMaxRenewals))
	assert.Equal(t, StatusExpired, l.Status)
	assert.Equal(t, "MAX_RENEWALS", l.EndReason)
	assert.Equal(t, int64(40), l.EndedAtCycle)

	var te *TransitionError
	err := l.Revoke(41, ViolationSpawnAttempt)
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusExpired, te.From)
	assert.Equal(t, StatusRevoked, te.To)

	q := activeLease(t, "control:compliant", 1)
	require.NoError(t, q.Supersede(9, SupersededByLapse))
	assert.Equal(t, StatusSuperseded, q.Status)
	assert.Equal(t, "LAPSE", q.EndReason)

	p := New("lease-3", lcpFor(t, "control:compliant"), 0, 0, 1, 80)
	require.Error(t, p.Supersede(0, SupersededBySuccessor), "pending lease cannot be superseded")
}

func TestValidateLCP(t *testing.T) {
	require.NoError(t, ValidateLCP(lcpFor(t, "control:compliant")))
	require.NoError(t, ValidateLCP(lcpFor(t, "cbd:greedy")))

	code := func(lcp mind.LCP) string {
		var le *LCPError
		require.True(t, errors.As(ValidateLCP(lcp), &le))
		return le.Code
	}
	assert.Equal(t, ErrLCPRevocationProof, code(lcpFor(t, "malformed:no_proof")))
	assert.Equal(t, ErrLCPDelegation, code(lcpFor(t, "malformed:delegator")))

	bad := lcpFor(t, "control:compliant")
	bad.Manifest.BuildCommitment = "sha256:xyz"
	assert.Equal(t, ErrLCPBuildCommitment, code(bad))

	bad = lcpFor(t, "control:compliant")
	bad.Manifest.Interface.ActionTypes = nil
	assert.Equal(t, ErrLCPInterface, code(bad))

	bad = lcpFor(t, "control:compliant")
	bad.Manifest.Resources.StepsPerEpoch = 0
	assert.Equal(t, ErrLCPResources, code(bad))

	bad = lcpFor(t, "control:compliant")
	bad.SentinelCompatProof = "sentinel-compat:sha256:other"
	assert.Equal(t, ErrLCPSentinelProof, code(bad))

	bad = lcpFor(t, "control:compliant")
	bad.NoNewAuthority = false
	assert.Equal(t, ErrLCPNoNewAuthority, code(bad))
}

func newSentinel(t *testing.T, l *Lease, steps int) *Sentinel {
	t.Helper()
	s, err := NewSentinel(kernel.RootSeed(42))
	require.NoError(t, err)
	s.Bind(l)
	s.ResetEpoch(steps)
	return s
}

func TestSentinel_Admit(t *testing.T) {
	s := newSentinel(t, activeLease(t, "control:compliant", 3), 10)

	assert.Nil(t, s.Admit(mind.Wait()))
	assert.Nil(t, s.Admit(mind.Action{Type: mind.ActionLog}))
	assert.Nil(t, s.Admit(mind.Action{Type: mind.ActionSequence, Ops: 2}))
	assert.Equal(t, Usage{StepsAvailable: 10, Steps: 3, Actions: 2}, s.Usage())

	steps, actions, ext := s.Remaining()
	assert.Equal(t, 7, steps)
	assert.Equal(t, 8, actions)
	assert.Equal(t, 1, ext)

	v := s.Admit(mind.Action{Type: mind.ActionInvokeTool})
	require.NotNil(t, v)
	assert.Equal(t, ViolationInvalidActionType, v.Type)

	v = s.Admit(mind.Action{Type: mind.ActionSpawn})
	require.NotNil(t, v)
	assert.Equal(t, ViolationSpawnAttempt, v.Type)

	v = s.Admit(mind.Action{Type: "TELEPORT"})
	require.NotNil(t, v)
	assert.Equal(t, ViolationInvalidActionType, v.Type)

	v = s.Admit(mind.Action{Type: mind.ActionSequence, Ops: 8})
	require.NotNil(t, v)
	assert.Equal(t, ViolationStepOverrun, v.Type)
}

func TestSentinel_ActionAndExternalOverrun(t *testing.T) {
	s := newSentinel(t, activeLease(t, "cbd:greedy", 3), 100)
	require.Nil(t, s.Admit(mind.Action{Type: mind.ActionInvokeTool}))
	v := s.Admit(mind.Action{Type: mind.ActionInvokeTool})
	require.NotNil(t, v)
	assert.Equal(t, ViolationExternalCallOverrun, v.Type)

	s.ResetEpoch(100)
	for i := 0; i < defaults.ActionsPerEpoch; i++ {
		require.Nil(t, s.Admit(mind.Action{Type: mind.ActionLog}))
	}
	v = s.Admit(mind.Action{Type: mind.ActionLog})
	require.NotNil(t, v)
	assert.Equal(t, ViolationActionOverrun, v.Type)
}

func TestSentinel_Unbound(t *testing.T) {
	s, err := NewSentinel(kernel.RootSeed(1))
	require.NoError(t, err)
	assert.NotNil(t, s.Admit(mind.Action{Type: mind.ActionLog}))
	_, err = s.GenerateAttestation("n", 0)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestAttestation_RoundTrip(t *testing.T) {
	l := activeLease(t, "control:compliant", 3)
	s := newSentinel(t, l, 50)
	require.Nil(t, s.Admit(mind.Action{Type: mind.ActionLog}))

	tok, err := s.GenerateAttestation("nonce-1", 100)
	require.NoError(t, err)

	claims, err := s.VerifyAttestation(tok, l.ID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", claims.Nonce)
	assert.Equal(t, int64(100), claims.Cycle)
	assert.Equal(t, 1, claims.Compliance.Actions)

	again, err := s.GenerateAttestation("nonce-1", 100)
	require.NoError(t, err)
	assert.Equal(t, tok, again, "attestations are deterministic")
}

func TestAttestation_Rejections(t *testing.T) {
	l := activeLease(t, "control:compliant", 3)
	s := newSentinel(t, l, 50)
	tok, err := s.GenerateAttestation("nonce-1", 100)
	require.NoError(t, err)

	_, err = s.VerifyAttestation(tok, l.ID, 111, 10)
	assert.ErrorIs(t, err, ErrAttestationStale)

	_, err = s.VerifyAttestation(tok, "lease-other", 100, 10)
	assert.ErrorIs(t, err, ErrAttestationInvalid)

	other, err := NewSentinel(kernel.RootSeed(43))
	require.NoError(t, err)
	_, err = other.VerifyAttestation(tok, l.ID, 100, 10)
	assert.ErrorIs(t, err, ErrAttestationInvalid)

	_, err = s.VerifyAttestation("not-a-token", l.ID, 100, 10)
	assert.ErrorIs(t, err, ErrAttestationInvalid)
}
