package mind

import (
	"fmt"
)

// CandidateSpec configures one entry of the successor pool.
type CandidateSpec struct {
	Category string `yaml:"category" json:"category"`
	Variant  string `yaml:"variant" json:"variant"`
	Weight   int    `yaml:"weight" json:"weight"`
	Params   Params `yaml:"params,omitempty" json:"params,omitempty"`
}

// Candidate is one freshly generated successor instance.
type Candidate struct {
	LCP    LCP
	Mind   WorkingMind
	Weight int
}

// PolicyID returns the candidate's policy identity.
func (c Candidate) PolicyID() string { return c.LCP.Manifest.PolicyID }

// Generator produces the candidate pool for a succession attempt. It is
// re-invoked at every attempt; identities are stable, instances are fresh.
type Generator interface {
	Propose(cycle int64) []Candidate
}

// Wrapper substitutes the working mind of a candidate (used by the RSA
// adversary hook). It must not alter the manifest.
type Wrapper func(policyID string, m WorkingMind) WorkingMind

// PoolGenerator instantiates every configured candidate spec, in
// declaration order, at each attempt.
type PoolGenerator struct {
	specs     []CandidateSpec
	variants  []Variant
	defaults  ResourceEnvelope
	wrap      Wrapper
	observers []EpochObserver
	proposals int
}

// NewPoolGenerator validates specs against the variant registry.
func NewPoolGenerator(specs []CandidateSpec, defaults ResourceEnvelope) (*PoolGenerator, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("candidate pool is empty")
	}
	g := &PoolGenerator{specs: specs, defaults: defaults}
	for _, s := range specs {
		v, ok := Lookup(PolicyID(s.Category, s.Variant))
		if !ok {
			return nil, fmt.Errorf("unknown successor variant %q", PolicyID(s.Category, s.Variant))
		}
		g.variants = append(g.variants, v)
	}
	return g, nil
}

// WithWrapper installs a mind wrapper applied to every new instance.
func (g *PoolGenerator) WithWrapper(w Wrapper) *PoolGenerator {
	g.wrap = w
	return g
}

// WithObserver forwards the published observables to o at every epoch,
// including epochs with no lease holder.
func (g *PoolGenerator) WithObserver(o EpochObserver) *PoolGenerator {
	g.observers = append(g.observers, o)
	return g
}

// ObserveEpoch implements EpochObserver.
func (g *PoolGenerator) ObserveEpoch(epoch int64, obs Observables) {
	for _, o := range g.observers {
		o.ObserveEpoch(epoch, obs)
	}
}

// Proposals returns how many times the pool has been generated.
func (g *PoolGenerator) Proposals() int { return g.proposals }

// Propose implements Generator.
func (g *PoolGenerator) Propose(cycle int64) []Candidate {
	g.proposals++
	out := make([]Candidate, 0, len(g.specs))
	for i, s := range g.specs {
		m, lcp := g.variants[i].New(g.defaults, s.Params)
		if g.wrap != nil {
			m = g.wrap(lcp.Manifest.PolicyID, m)
		}
		w := s.Weight
		if w <= 0 {
			w = 1
		}
		out = append(out, Candidate{LCP: lcp, Mind: m, Weight: w})
	}
	return out
}
