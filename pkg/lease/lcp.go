package lease

import (
	"fmt"

	"github.com/macterra/Axio-sub003/pkg/canonicalize"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// LCP rejection codes.
const (
	ErrLCPBuildCommitment = "ERR_LCP_BUILD_COMMITMENT"
	ErrLCPInterface       = "ERR_LCP_INTERFACE"
	ErrLCPDelegation      = "ERR_LCP_DELEGATION"
	ErrLCPResources       = "ERR_LCP_RESOURCES"
	ErrLCPSentinelProof   = "ERR_LCP_SENTINEL_PROOF"
	ErrLCPRevocationProof = "ERR_LCP_REVOCATION_PROOF"
	ErrLCPNoNewAuthority  = "ERR_LCP_NO_NEW_AUTHORITY"
)

// LCPError is an admissibility rejection. It denies the lease and is
// never a system fault.
type LCPError struct {
	Code     string `json:"code"`
	PolicyID string `json:"policy_id"`
	Detail   string `json:"detail"`
}

func (e *LCPError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.PolicyID, e.Detail)
}

// ValidateLCP performs the structural PENDING -> ACTIVE checks. Behaviour
// and utility are never inspected.
func ValidateLCP(lcp mind.LCP) error {
	m := lcp.Manifest
	reject := func(code, format string, args ...interface{}) error {
		return &LCPError{Code: code, PolicyID: m.PolicyID, Detail: fmt.Sprintf(format, args...)}
	}

	if !canonicalize.IsDigest(m.BuildCommitment) {
		return reject(ErrLCPBuildCommitment, "malformed build commitment %q", m.BuildCommitment)
	}
	if len(m.Interface.ActionTypes) == 0 {
		return reject(ErrLCPInterface, "no action types declared")
	}
	for _, t := range m.Interface.ActionTypes {
		if mind.IsDelegation(t) {
			return reject(ErrLCPDelegation, "interface declares %s", t)
		}
		if !mind.KnownActionType(t) {
			return reject(ErrLCPInterface, "unknown action type %s", t)
		}
	}
	for _, g := range m.Interface.Groups {
		if !mind.KnownGroup(g) {
			return reject(ErrLCPInterface, "unknown capability group %s", g)
		}
	}
	r := m.Resources
	if r.StepsPerEpoch <= 0 || r.ActionsPerEpoch <= 0 || r.ExternalCallsPerEpoch < 0 || r.MemoryCells < 0 {
		return reject(ErrLCPResources, "resource envelope not declared: %+v", r)
	}
	if lcp.SentinelCompatProof != "sentinel-compat:"+m.BuildCommitment {
		return reject(ErrLCPSentinelProof, "sentinel compatibility proof missing or unbound")
	}
	if lcp.RevocationHookProof != "revocation-hook:"+m.BuildCommitment {
		return reject(ErrLCPRevocationProof, "revocation hook proof missing or unbound")
	}
	if !lcp.NoNewAuthority {
		return reject(ErrLCPNoNewAuthority, "no-new-authority declaration absent")
	}
	return nil
}
