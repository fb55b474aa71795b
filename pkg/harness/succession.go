package harness

import (
	"context"
	"errors"

	"github.com/macterra/Axio-sub003/pkg/constitution"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/lease"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

// initialSuccession endorses the first holder before epoch 0.
func (h *Harness) initialSuccession(ctx context.Context) error {
	h.state.Cycle = 0
	h.state.Epoch = 0
	return h.runSuccession(ctx, 0, 0, "init")
}

// succession runs a Succession Event at the end of epoch e. It is only
// legal on a boundary.
func (h *Harness) succession(ctx context.Context, e int64, reason string) error {
	s := h.state
	if !h.isBoundary(e) {
		return kernel.NewInvariantError(kernel.InvOffScheduleSuccess, s.Cycle, e, "succession at non-boundary epoch %d", e)
	}
	cycle := (e + 1) * int64(h.cfg.RenewalCheckInterval)
	s.Cycle = cycle
	return h.runSuccession(ctx, e, cycle, reason)
}

func (h *Harness) runSuccession(ctx context.Context, e, cycle int64, reason string) error {
	s := h.state
	h.m.attempts++
	pool := h.gen.Propose(cycle)

	var structural []mind.Candidate
	for _, c := range pool {
		if err := lease.ValidateLCP(c.LCP); err != nil {
			h.m.lcpRejections++
			payload := map[string]interface{}{"policy_id": c.PolicyID(), "error": err.Error()}
			var lcpErr *lease.LCPError
			if errors.As(err, &lcpErr) {
				payload["code"] = lcpErr.Code
			}
			if err := h.emit(ctx, EventLeaseDenied, payload); err != nil {
				return err
			}
			continue
		}
		structural = append(structural, c)
	}
	eligible := structural
	if h.flags.Eligibility {
		eligible = s.Streaks.Filter(structural, h.cfg.Eligibility.K)
	}
	if err := h.emit(ctx, EventSuccessionAttempted, map[string]interface{}{
		"attempt":    h.m.attempts,
		"reason":     reason,
		"pool":       len(pool),
		"structural": len(structural),
		"eligible":   len(eligible),
	}); err != nil {
		return err
	}

	if len(eligible) == 0 {
		return h.lapse(ctx, e, constitution.ClassifyLapse(len(structural)))
	}
	weights := make([]int, len(eligible))
	for i, c := range eligible {
		weights[i] = c.Weight
	}
	return h.endorse(ctx, e, cycle, eligible[h.succPRNG.WeightedIndex(weights)])
}

// endorse issues a lease to the drawn candidate and retires the incumbent.
func (h *Harness) endorse(ctx context.Context, e, cycle int64, c mind.Candidate) error {
	s := h.state
	if s.Lease != nil {
		if err := h.supersede(ctx, lease.SupersededBySuccessor); err != nil {
			return err
		}
	}
	l := lease.New(h.minter.Mint("lease", s.Successions), c.LCP, cycle, e, h.cfg.MaxSuccessiveRenewals, h.cfg.Resources.StepsCapEpoch)
	if err := l.Activate(); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, cycle, e, "%v", err)
	}
	s.Lease = l
	s.Mind = c.Mind
	s.Leases = append(s.Leases, l)
	s.LastPolicy = l.PolicyID
	s.LastRenewal = mind.RenewalNotAttempted
	s.Sentinel.Bind(l)
	s.Successions++
	h.m.endorsements++
	h.logger.Info("successor endorsed", "lease_id", l.ID, "policy_id", l.PolicyID, "epoch", e, "s_star", s.Successions)
	if err := h.emit(ctx, EventSuccessorEndorsed, map[string]interface{}{
		"lease_id":  l.ID,
		"policy_id": l.PolicyID,
		"e_class":   l.EClass.String(),
		"steps":     l.Budget.StepsPerEpoch,
		"s_star":    s.Successions,
	}); err != nil {
		return err
	}

	if !s.Constitution.InLapse() {
		return nil
	}
	lapseEpochs := s.Constitution.LapseEpochCount()
	if err := s.Constitution.Recover(e); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, cycle, e, "%v", err)
	}
	s.Streaks.Unseal()
	h.logger.Info("lapse recovered", "epoch", e, "lapse_epochs", lapseEpochs)
	return h.emit(ctx, EventLapseRecovered, map[string]interface{}{
		"lease_id":     l.ID,
		"lapse_epochs": lapseEpochs,
	})
}

// lapse enters NULL_AUTHORITY, or records another failed attempt inside one.
func (h *Harness) lapse(ctx context.Context, e int64, cause constitution.LapseCause) error {
	s := h.state
	if s.Lease != nil {
		if err := h.supersede(ctx, lease.SupersededByLapse); err != nil {
			return err
		}
	}
	if s.Constitution.InLapse() {
		s.Constitution.Reclassify(cause)
		h.logger.Info("succession failed during lapse", "epoch", e, "cause", cause, "lapse_epochs", s.Constitution.LapseEpochCount())
		return h.emit(ctx, EventSuccessionFailed, map[string]interface{}{
			"cause":        string(cause),
			"lapse_epochs": s.Constitution.LapseEpochCount(),
		})
	}
	if err := s.Constitution.EnterLapse(e, cause); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, s.Cycle, e, "%v", err)
	}
	s.Streaks.Seal()
	s.LapseSeen = true
	h.logger.Info("lapse entered", "epoch", e, "cause", cause)
	return h.emit(ctx, EventLapseEntered, map[string]interface{}{
		"cause":       string(cause),
		"streak_mass": s.Streaks.Mass(),
	})
}

func (h *Harness) supersede(ctx context.Context, reason string) error {
	s := h.state
	l := s.Lease
	if err := l.Supersede(s.Cycle, reason); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, s.Cycle, s.Epoch, "%v", err)
	}
	h.m.supersessions++
	h.vacate()
	return h.emit(ctx, EventLeaseSuperseded, map[string]interface{}{
		"lease_id":  l.ID,
		"policy_id": l.PolicyID,
		"reason":    reason,
	})
}
