package harness

import (
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/lease"
)

// audit checks the kernel invariants after every epoch end. A failure is a
// kernel bug, never an experimental outcome.
func (h *Harness) audit(e int64) error {
	s := h.state
	active := 0
	for _, l := range s.Leases {
		if l.Status == lease.StatusActive {
			active++
		}
	}
	if active > 1 {
		return kernel.NewInvariantError(kernel.InvSingleActiveLease, s.Cycle, e, "%d active leases", active)
	}
	if s.Lease != nil && s.Lease.Status != lease.StatusActive {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, s.Cycle, e, "holder lease %s is %s", s.Lease.ID, s.Lease.Status)
	}
	for id, v := range s.Streaks.Snapshot() {
		if v < 0 {
			return kernel.NewInvariantError(kernel.InvStreakNonNegative, s.Cycle, e, "streak[%s] = %d", id, v)
		}
	}
	if endorsed := h.m.events[EventSuccessorEndorsed]; endorsed != s.Successions {
		return kernel.NewInvariantError(kernel.InvSuccessionCount, s.Cycle, e, "S*=%d but %d endorsements logged", s.Successions, endorsed)
	}
	if s.Constitution.InLapse() {
		if s.Lease != nil {
			return kernel.NewInvariantError(kernel.InvSingleActiveLease, s.Cycle, e, "lease %s held during lapse", s.Lease.ID)
		}
		if !s.Streaks.Sealed() {
			return kernel.NewInvariantError(kernel.InvLapseStreakMutation, s.Cycle, e, "streak table unsealed during lapse")
		}
	}
	return nil
}

// checkLapseMutation compares the streak table around a lapse tick. Without
// amnesty nothing may change; with amnesty every streak may only fall.
func checkLapseMutation(before, after map[string]int, amnesty bool, cycle, epoch int64) error {
	for id, b := range before {
		a, ok := after[id]
		switch {
		case !ok:
			return kernel.NewInvariantError(kernel.InvLapseStreakMutation, cycle, epoch, "streak[%s] removed during lapse", id)
		case !amnesty && a != b:
			return kernel.NewInvariantError(kernel.InvLapseStreakMutation, cycle, epoch, "streak[%s] %d -> %d during lapse", id, b, a)
		case amnesty && a > b:
			return kernel.NewInvariantError(kernel.InvLapseStreakMutation, cycle, epoch, "amnesty raised streak[%s] %d -> %d", id, b, a)
		}
	}
	if len(after) != len(before) {
		return kernel.NewInvariantError(kernel.InvLapseStreakMutation, cycle, epoch, "streak keys changed during lapse tick")
	}
	return nil
}
