// Package expressivity classifies successors into structural tiers E0–E4 from
// their declared capability groups and prices each tier as a per-epoch rent
// against the step budget.
package expressivity

import (
	"fmt"
	"math"

	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// Class is an expressivity tier.
type Class int

const (
	E0 Class = iota
	E1
	E2
	E3
	E4
)

// Classes lists every tier in ascending order.
var Classes = []Class{E0, E1, E2, E3, E4}

// String implements fmt.Stringer for Class.
func (c Class) String() string {
	if c < E0 || c > E4 {
		return fmt.Sprintf("E?(%d)", int(c))
	}
	return fmt.Sprintf("E%d", int(c))
}

// Classify derives the tier from declared capability groups only.
func Classify(iface mind.Interface) Class {
	switch {
	case iface.HasGroup(mind.GroupOrchestration):
		return E4
	case iface.HasGroup(mind.GroupExternal):
		return E3
	case iface.HasGroup(mind.GroupSequence):
		return E2
	case iface.HasGroup(mind.GroupState):
		return E1
	default:
		return E0
	}
}

// Schedule holds the rent fraction of the step cap charged per tier.
type Schedule struct {
	Fractions [5]float64
}

// DefaultSchedule is the reference rent schedule.
func DefaultSchedule() Schedule {
	return Schedule{Fractions: [5]float64{0.10, 0.15, 0.20, 0.25, 0.40}}
}

// ZeroSchedule charges no rent (kernels predating expressivity rent).
func ZeroSchedule() Schedule {
	return Schedule{}
}

// Rent returns ceil(fraction(class) * stepsCap).
func (s Schedule) Rent(c Class, stepsCap int) int {
	if c < E0 || c > E4 {
		return stepsCap
	}
	// The epsilon absorbs binary representation error (0.15*100 must be 15).
	return int(math.Ceil(s.Fractions[c]*float64(stepsCap) - 1e-9))
}

// Validate checks the schedule against stepsCap: fractions within [0,1),
// monotone non-decreasing in tier, and every rent at most stepsCap-1.
func (s Schedule) Validate(stepsCap int) error {
	if stepsCap < 1 {
		return kernel.NewConfigError(kernel.ErrConfigRentSchedule, "steps_cap_epoch", "must be positive, got %d", stepsCap)
	}
	prev := -1
	for _, c := range Classes {
		f := s.Fractions[c]
		if f < 0 || f >= 1 || math.IsNaN(f) {
			return kernel.NewConfigError(kernel.ErrConfigRentSchedule, "rent."+c.String(), "fraction %v outside [0,1)", f)
		}
		r := s.Rent(c, stepsCap)
		if r > stepsCap-1 {
			return kernel.NewConfigError(kernel.ErrConfigRentSchedule, "rent."+c.String(), "rent %d exceeds steps_cap_epoch-1 (%d)", r, stepsCap-1)
		}
		if r < prev {
			return kernel.NewConfigError(kernel.ErrConfigRentSchedule, "rent."+c.String(), "rent %d below lower tier rent %d", r, prev)
		}
		prev = r
	}
	return nil
}
