package mind

import (
	"fmt"

	"github.com/macterra/Axio-sub003/pkg/canonicalize"
)

// Interface is the declared action surface of a successor.
type Interface struct {
	ActionTypes []ActionType      `json:"action_types"`
	Groups      []CapabilityGroup `json:"capability_groups"`
}

// Allows reports whether t is in the declared action set.
func (i Interface) Allows(t ActionType) bool {
	for _, a := range i.ActionTypes {
		if a == t {
			return true
		}
	}
	return false
}

// HasGroup reports whether g is declared.
func (i Interface) HasGroup(g CapabilityGroup) bool {
	for _, x := range i.Groups {
		if x == g {
			return true
		}
	}
	return false
}

// ResourceEnvelope holds per-epoch caps declared by a successor.
type ResourceEnvelope struct {
	StepsPerEpoch         int `json:"steps_per_epoch"`
	ActionsPerEpoch       int `json:"actions_per_epoch"`
	ExternalCallsPerEpoch int `json:"external_calls_per_epoch"`
	MemoryCells           int `json:"memory_cells"`
}

// Manifest declares a successor's capabilities at endorsement time. It is a
// value type: once submitted it cannot be altered by the successor.
type Manifest struct {
	PolicyID        string           `json:"policy_id"`
	BuildCommitment string           `json:"build_commitment"`
	Interface       Interface        `json:"interface"`
	Resources       ResourceEnvelope `json:"resources"`
}

// PolicyID formats the stable identity of a policy class.
func PolicyID(category, variant string) string {
	return canonicalize.Identifier(fmt.Sprintf("%s:%s", category, variant))
}

// BuildCommitment digests the class-level description of a successor. The
// instance number is deliberately not an input.
func BuildCommitment(policyID string, iface Interface, res ResourceEnvelope) string {
	d, err := canonicalize.Digest(map[string]interface{}{
		"policy_id": policyID,
		"interface": iface,
		"resources": res,
	})
	if err != nil {
		return ""
	}
	return d
}

// LCP is the Lease-Compliance Package submitted with a manifest.
type LCP struct {
	Manifest            Manifest `json:"manifest"`
	SentinelCompatProof string   `json:"sentinel_compat_proof"`
	RevocationHookProof string   `json:"revocation_hook_proof"`
	NoNewAuthority      bool     `json:"no_new_authority"`
}

// NewLCP returns a complete package for m with proofs bound to its build
// commitment.
func NewLCP(m Manifest) LCP {
	return LCP{
		Manifest:            m,
		SentinelCompatProof: "sentinel-compat:" + m.BuildCommitment,
		RevocationHookProof: "revocation-hook:" + m.BuildCommitment,
		NoNewAuthority:      true,
	}
}
