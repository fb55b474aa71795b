// Package constitution holds the constitutional authority state, lapse
// episodes and temporal amnesty bookkeeping.
package constitution

import (
	"fmt"
)

// State is the constitutional authority state.
type State string

const (
	HasAuthority  State = "HAS_AUTHORITY"
	NullAuthority State = "NULL_AUTHORITY"
)

// LapseCause classifies a failed succession attempt.
type LapseCause string

const (
	// Semantic: structurally admissible candidates existed but none were
	// eligible.
	Semantic LapseCause = "SEMANTIC"
	// Structural: no candidate passed LCP validation.
	Structural LapseCause = "STRUCTURAL"
)

// ClassifyLapse returns the cause for an attempt with nStruct admissible
// candidates.
func ClassifyLapse(nStruct int) LapseCause {
	if nStruct > 0 {
		return Semantic
	}
	return Structural
}

// Episode is one NULL_AUTHORITY interval and the authority that followed it.
type Episode struct {
	Index            int        `json:"index"`
	Cause            LapseCause `json:"cause"`
	StartEpoch       int64      `json:"start_epoch"`
	EndEpoch         int64      `json:"end_epoch,omitempty"`
	LapseEpochs      int        `json:"lapse_epochs"`
	SemanticEpochs   int        `json:"semantic_epochs"`
	StructuralEpochs int        `json:"structural_epochs"`
	AmnestyEvents    int        `json:"amnesty_events"`
	Recovered        bool       `json:"recovered"`
	ActiveAfter      int        `json:"active_epochs_after"`
}

// RecoveryYield is active epochs after recovery over max(1, lapse epochs).
func (e Episode) RecoveryYield() float64 {
	d := e.LapseEpochs
	if d < 1 {
		d = 1
	}
	return float64(e.ActiveAfter) / float64(d)
}

// Stutter reports a recovery that held authority for exactly one epoch.
func (e Episode) Stutter() bool { return e.Recovered && e.ActiveAfter == 1 }

// Constitution is the singleton constitutional state of a run.
type Constitution struct {
	state           State
	lapseEpochCount int
	amnestyInterval int
	amnestyDecay    int

	episodes      []Episode
	amnestyEvents int
	massRemoved   int
}

// New returns a constitution in HAS_AUTHORITY. An amnestyInterval of 0
// disables amnesty.
func New(amnestyInterval, amnestyDecay int) *Constitution {
	return &Constitution{state: HasAuthority, amnestyInterval: amnestyInterval, amnestyDecay: amnestyDecay}
}

// State returns the current authority state.
func (c *Constitution) State() State { return c.state }

// InLapse reports NULL_AUTHORITY.
func (c *Constitution) InLapse() bool { return c.state == NullAuthority }

// LapseEpochCount is the number of epochs spent in the current lapse.
func (c *Constitution) LapseEpochCount() int { return c.lapseEpochCount }

// AmnestyDecay is the per-event streak decrement.
func (c *Constitution) AmnestyDecay() int { return c.amnestyDecay }

// AmnestyInterval is the configured interval (0 when disabled).
func (c *Constitution) AmnestyInterval() int { return c.amnestyInterval }

// EnterLapse starts a new episode.
func (c *Constitution) EnterLapse(epoch int64, cause LapseCause) error {
	if c.state == NullAuthority {
		return fmt.Errorf("constitution: lapse entered twice at epoch %d", epoch)
	}
	c.state = NullAuthority
	c.lapseEpochCount = 0
	c.episodes = append(c.episodes, Episode{Index: len(c.episodes), Cause: cause, StartEpoch: epoch})
	return nil
}

// Reclassify updates the cause after a failed re-attempt inside a lapse.
func (c *Constitution) Reclassify(cause LapseCause) {
	if ep := c.current(); ep != nil && c.InLapse() {
		ep.Cause = cause
	}
}

// TickLapse advances the lapse clock by one epoch and reports whether
// amnesty fires on it.
func (c *Constitution) TickLapse() bool {
	if c.state != NullAuthority {
		return false
	}
	c.lapseEpochCount++
	ep := c.current()
	ep.LapseEpochs++
	if ep.Cause == Semantic {
		ep.SemanticEpochs++
	} else {
		ep.StructuralEpochs++
	}
	return c.amnestyInterval > 0 && c.lapseEpochCount%c.amnestyInterval == 0
}

// RecordAmnesty counts one amnesty event that removed mass streak units.
func (c *Constitution) RecordAmnesty(mass int) {
	c.amnestyEvents++
	c.massRemoved += mass
	if ep := c.current(); ep != nil {
		ep.AmnestyEvents++
	}
}

// Recover leaves NULL_AUTHORITY at a succession boundary.
func (c *Constitution) Recover(epoch int64) error {
	if c.state != NullAuthority {
		return fmt.Errorf("constitution: recovery without lapse at epoch %d", epoch)
	}
	ep := c.current()
	ep.Recovered = true
	ep.EndEpoch = epoch
	c.state = HasAuthority
	c.lapseEpochCount = 0
	return nil
}

// TickActive credits one epoch of held authority to the latest recovered
// episode.
func (c *Constitution) TickActive() {
	if ep := c.current(); ep != nil && ep.Recovered && c.state == HasAuthority {
		ep.ActiveAfter++
	}
}

func (c *Constitution) current() *Episode {
	if len(c.episodes) == 0 {
		return nil
	}
	return &c.episodes[len(c.episodes)-1]
}

// Stats are the lapse metrics of a run.
type Stats struct {
	LapseCount            int       `json:"lapse_count"`
	LapseEpochs           int       `json:"lapse_epochs"`
	SemanticLapseEpochs   int       `json:"semantic_lapse_epochs"`
	StructuralLapseEpochs int       `json:"structural_lapse_epochs"`
	Recoveries            int       `json:"recoveries"`
	StutterRecoveries     int       `json:"stutter_recoveries"`
	AmnestyEvents         int       `json:"amnesty_events"`
	StreakMassRemoved     int       `json:"streak_mass_removed"`
	RecoveryYields        []float64 `json:"recovery_yields"`
	MeanRecoveryYield     float64   `json:"mean_recovery_yield"`
	Episodes              []Episode `json:"episodes"`
}

// Stats summarises every episode so far.
func (c *Constitution) Stats() Stats {
	s := Stats{
		LapseCount:        len(c.episodes),
		AmnestyEvents:     c.amnestyEvents,
		StreakMassRemoved: c.massRemoved,
		RecoveryYields:    []float64{},
		Episodes:          append([]Episode(nil), c.episodes...),
	}
	for _, ep := range c.episodes {
		s.LapseEpochs += ep.LapseEpochs
		s.SemanticLapseEpochs += ep.SemanticEpochs
		s.StructuralLapseEpochs += ep.StructuralEpochs
		if !ep.Recovered {
			continue
		}
		s.Recoveries++
		if ep.Stutter() {
			s.StutterRecoveries++
		}
		s.RecoveryYields = append(s.RecoveryYields, ep.RecoveryYield())
	}
	if n := len(s.RecoveryYields); n > 0 {
		var sum float64
		for _, y := range s.RecoveryYields {
			sum += y
		}
		s.MeanRecoveryYield = sum / float64(n)
	}
	return s
}
