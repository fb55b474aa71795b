// Package eligibility tracks consecutive semantic failures per policy
// identity and gates succession on them.
package eligibility

import (
	"errors"
	"sort"

	"github.com/macterra/Axio-sub003/pkg/mind"
)

var (
	// ErrLapseMutation is returned for a pass/fail update during lapse.
	ErrLapseMutation = errors.New("streak update during lapse")
	// ErrAmnestyOutsideLapse is returned for a decay while authority holds.
	ErrAmnestyOutsideLapse = errors.New("amnesty outside lapse")
)

// StreakTable maps policy_id to its consecutive semantic-fail count.
// Entries are created lazily and never deleted. The table refuses
// pass/fail updates while sealed for a lapse and refuses decay otherwise.
type StreakTable struct {
	streaks map[string]int
	sealed  bool
}

// NewStreakTable returns an empty table.
func NewStreakTable() *StreakTable {
	return &StreakTable{streaks: make(map[string]int)}
}

// Get returns the streak for id, 0 when unseen.
func (t *StreakTable) Get(id string) int { return t.streaks[id] }

// Observe creates the entry for id if absent. A sealed table is left
// untouched.
func (t *StreakTable) Observe(id string) {
	if t.sealed {
		return
	}
	if _, ok := t.streaks[id]; !ok {
		t.streaks[id] = 0
	}
}

// Eligible reports streak[id] < k.
func (t *StreakTable) Eligible(id string, k int) bool { return t.streaks[id] < k }

// Seal enters lapse mode; Unseal leaves it.
func (t *StreakTable) Seal()   { t.sealed = true }
func (t *StreakTable) Unseal() { t.sealed = false }

// Sealed reports lapse mode.
func (t *StreakTable) Sealed() bool { return t.sealed }

// RecordPass resets the streak of id.
func (t *StreakTable) RecordPass(id string) error {
	if t.sealed {
		return ErrLapseMutation
	}
	t.streaks[id] = 0
	return nil
}

// RecordFail increments the streak of id.
func (t *StreakTable) RecordFail(id string) error {
	if t.sealed {
		return ErrLapseMutation
	}
	t.streaks[id]++
	return nil
}

// Decay lowers every known streak by amount, clamped at 0, and returns the
// total streak mass removed.
func (t *StreakTable) Decay(amount int) (int, error) {
	if !t.sealed {
		return 0, ErrAmnestyOutsideLapse
	}
	removed := 0
	for id, s := range t.streaks {
		next := s - amount
		if next < 0 {
			next = 0
		}
		removed += s - next
		t.streaks[id] = next
	}
	return removed, nil
}

// Mass is the sum of all streaks.
func (t *StreakTable) Mass() int {
	total := 0
	for _, s := range t.streaks {
		total += s
	}
	return total
}

// Known returns every observed policy id, sorted.
func (t *StreakTable) Known() []string {
	ids := make([]string, 0, len(t.streaks))
	for id := range t.streaks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot copies the table.
func (t *StreakTable) Snapshot() map[string]int {
	out := make(map[string]int, len(t.streaks))
	for id, s := range t.streaks {
		out[id] = s
	}
	return out
}

// Filter returns the candidates whose policy is eligible under k, in
// generator order. Every candidate's policy is observed unless the table is
// sealed; unseen policies are eligible either way.
func (t *StreakTable) Filter(candidates []mind.Candidate, k int) []mind.Candidate {
	var out []mind.Candidate
	for _, c := range candidates {
		t.Observe(c.PolicyID())
		if t.Eligible(c.PolicyID(), k) {
			out = append(out, c)
		}
	}
	return out
}
