package config

import (
	"github.com/Masterminds/semver/v3"

	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// FeatureSet is the resolved kernel feature flags.
type FeatureSet struct {
	Rent        bool `json:"rent"`
	Commitments bool `json:"commitments"`
	Eligibility bool `json:"eligibility"`
	CTA         bool `json:"cta"`
}

// presets map kernel versions to the features they introduced.
var presets = []struct {
	constraint string
	enable     func(*FeatureSet)
}{
	{">= 0.5", func(f *FeatureSet) { f.Rent = true }},
	{">= 0.6", func(f *FeatureSet) { f.Commitments = true }},
	{">= 0.7", func(f *FeatureSet) { f.Eligibility = true }},
	{">= 0.8", func(f *FeatureSet) { f.CTA = true }},
}

// Flags resolves the version presets and applies explicit overrides.
func (c *Config) Flags() (FeatureSet, error) {
	var f FeatureSet
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return f, kernel.NewConfigError(kernel.ErrConfigInvalid, "version", "invalid kernel version %q: %v", c.Version, err)
	}
	for _, p := range presets {
		constraint, err := semver.NewConstraint(p.constraint)
		if err != nil {
			return f, kernel.NewConfigError(kernel.ErrConfigInvalid, "version", "invalid preset %q: %v", p.constraint, err)
		}
		if constraint.Check(v) {
			p.enable(&f)
		}
	}
	override := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	override(&f.Rent, c.Features.Rent)
	override(&f.Commitments, c.Features.Commitments)
	override(&f.Eligibility, c.Features.Eligibility)
	override(&f.CTA, c.Features.CTA)
	return f, nil
}
