// Package harness runs the succession kernel: the discrete-epoch loop that
// charges rent, drives the lease holder, evaluates commitments, updates
// eligibility and handles succession, lapse and amnesty.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/macterra/Axio-sub003/pkg/commitment"
	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/constitution"
	"github.com/macterra/Axio-sub003/pkg/eligibility"
	"github.com/macterra/Axio-sub003/pkg/expressivity"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/lease"
	"github.com/macterra/Axio-sub003/pkg/mind"
	"github.com/macterra/Axio-sub003/pkg/rsa"
)

// KernelState is the single mutable state of a run. Only the harness loop
// mutates it.
type KernelState struct {
	Epoch        int64
	Cycle        int64
	Lease        *lease.Lease
	Mind         mind.WorkingMind
	Leases       []*lease.Lease
	Streaks      *eligibility.StreakTable
	Ledger       *commitment.Ledger
	Constitution *constitution.Constitution
	Sentinel     *lease.Sentinel
	Successions  int
	LastRenewal  mind.RenewalOutcome
	LastPolicy   string
	LapseSeen    bool
}

// Option configures a Harness.
type Option func(*Harness)

// WithGenerator replaces the configured candidate pool.
func WithGenerator(g mind.Generator) Option { return func(h *Harness) { h.gen = g } }

// WithEventLog replaces the in-memory event log.
func WithEventLog(l kernel.EventLog) Option { return func(h *Harness) { h.events = l } }

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(h *Harness) { h.observers = append(h.observers, o) }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option { return func(h *Harness) { h.logger = l } }

// Harness owns one run. It is single use.
type Harness struct {
	cfg        *config.Config
	flags      config.FeatureSet
	schedule   expressivity.Schedule
	gen        mind.Generator
	events     kernel.EventLog
	observers  []Observer
	adversary  *rsa.Controller
	minter     *kernel.IDMinter
	runID      string
	configHash string
	succPRNG   *kernel.DeterministicPRNG
	noncePRNG  *kernel.DeterministicPRNG
	state      *KernelState
	m          metrics
	logger     *slog.Logger
	ran        bool
}

// New validates cfg and builds the initial kernel state. It returns only
// *kernel.ConfigError.
func New(cfg *config.Config, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	flags, err := cfg.Flags()
	if err != nil {
		return nil, err
	}
	configHash, err := cfg.Hash()
	if err != nil {
		return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "", "hash config: %v", err)
	}
	root := kernel.RootSeed(cfg.Seed)
	minter := kernel.NewIDMinter(root, configHash)

	h := &Harness{
		cfg:        cfg,
		flags:      flags,
		schedule:   cfg.Schedule(),
		minter:     minter,
		runID:      minter.RunID(),
		configHash: configHash,
		succPRNG:   kernel.NewStream(root, kernel.StreamSuccession),
		noncePRNG:  kernel.NewStream(root, kernel.StreamSentinel),
		m:          newMetrics(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "harness", "run_id", h.runID)
	if h.events == nil {
		h.events = kernel.NewMemoryLog()
	}

	if h.gen == nil {
		pool, err := mind.NewPoolGenerator(cfg.Candidates, cfg.Resources.Envelope())
		if err != nil {
			return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "candidates", "%v", err)
		}
		h.gen = pool
	}
	if cfg.Adversary.Model != "" {
		pool, ok := h.gen.(*mind.PoolGenerator)
		if !ok {
			return nil, kernel.NewConfigError(kernel.ErrConfigAdversary, "adversary.model", "adversary requires the configured candidate pool")
		}
		model, err := rsa.ParseModel(cfg.Adversary.Model)
		if err != nil {
			return nil, err
		}
		ctl, err := rsa.NewController(model, root)
		if err != nil {
			return nil, err
		}
		pool.WithWrapper(ctl.Wrap).WithObserver(ctl)
		h.adversary = ctl
	}

	sentinel, err := lease.NewSentinel(root)
	if err != nil {
		return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "seed", "%v", err)
	}
	interval := 0
	if flags.CTA {
		interval = cfg.Amnesty.Interval
	}
	h.state = &KernelState{
		Streaks:      eligibility.NewStreakTable(),
		Constitution: constitution.New(interval, cfg.Amnesty.Decay),
		Sentinel:     sentinel,
		LastRenewal:  mind.RenewalNotAttempted,
	}
	if flags.Commitments {
		ledger, err := commitment.NewLedger(nil, cfg.CommitCap())
		if err != nil {
			return nil, err
		}
		if err := ledger.SeedGenesis(cfg.Commitments.Genesis, 0); err != nil {
			return nil, err
		}
		h.state.Ledger = ledger
	}
	return h, nil
}

// RunID returns the deterministic run identifier.
func (h *Harness) RunID() string { return h.runID }

// Events returns the run's event log.
func (h *Harness) Events() kernel.EventLog { return h.events }

// State exposes the kernel state for inspection after a run.
func (h *Harness) State() *KernelState { return h.state }

// Run executes the run to completion. Adverse outcomes are events; only
// *kernel.ConfigError, *kernel.InvariantError or a context error are
// returned.
func (h *Harness) Run(ctx context.Context) (*Summary, error) {
	if h.ran {
		return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "", "harness %s already ran", h.runID)
	}
	h.ran = true
	ctx = context.WithValue(ctx, runIDKey{}, h.runID)
	s := h.state
	h.logger.Info("run started", "seed", h.cfg.Seed, "version", h.cfg.Version, "horizon_epochs", h.cfg.HorizonEpochs)
	if err := h.emit(ctx, EventRunStarted, map[string]interface{}{
		"run_id":      h.runID,
		"seed":        h.cfg.Seed,
		"version":     h.cfg.Version,
		"rent":        h.flags.Rent,
		"commitments": h.flags.Commitments,
		"eligibility": h.flags.Eligibility,
		"cta":         h.flags.CTA,
	}); err != nil {
		return nil, err
	}
	if err := h.initialSuccession(ctx); err != nil {
		return nil, err
	}

	interval := int64(h.cfg.RenewalCheckInterval)
	for e := int64(0); e < int64(h.cfg.HorizonEpochs); e++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s cancelled at epoch %d: %w", h.runID, e, err)
		}
		s.Epoch = e
		s.Cycle = e * interval
		if err := h.runEpoch(ctx, e); err != nil {
			return nil, err
		}
		h.m.epochs++
		if n := h.cfg.StopAfterLapseEpochs; n > 0 && s.Constitution.InLapse() && s.Constitution.LapseEpochCount() >= n {
			h.m.stoppedOnLapse = true
			h.logger.Info("run stopped on lapse limit", "epoch", e, "lapse_epochs", s.Constitution.LapseEpochCount())
			break
		}
	}

	summary := h.summarize()
	if err := h.emit(ctx, EventRunCompleted, map[string]interface{}{
		"s_star":         summary.Successions,
		"aa":             summary.AA,
		"aaa":            summary.AAA,
		"classification": string(summary.Classification),
	}); err != nil {
		return nil, err
	}
	summary.EventCount = h.events.Len()
	summary.EventLogHash = h.events.Head()
	h.logger.Info("run completed", "s_star", summary.Successions, "classification", summary.Classification, "aaa", summary.AAA)
	return summary, nil
}

func (h *Harness) runEpoch(ctx context.Context, e int64) error {
	h.publish(e)
	if h.state.Lease != nil {
		if err := h.runLeaseEpoch(ctx, e); err != nil {
			return err
		}
	}
	return h.endEpoch(ctx, e)
}

// publish hands the frozen observables to the generator and the holder.
func (h *Harness) publish(e int64) {
	s := h.state
	obs := mind.Observables{
		Authority:   mind.AuthorityActive,
		LapseSeen:   s.LapseSeen,
		Renewal:     s.LastRenewal,
		CTA:         mind.BucketCTA(s.Constitution.InLapse(), s.Constitution.LapseEpochCount(), s.Constitution.AmnestyInterval()),
		Eligibility: mind.EligibilitySafe,
	}
	if s.Constitution.InLapse() {
		obs.Authority = mind.AuthorityNull
	}
	if h.flags.Eligibility && s.LastPolicy != "" {
		obs.Eligibility = mind.BucketEligibility(s.Streaks.Get(s.LastPolicy), h.cfg.Eligibility.K)
	}
	if o, ok := h.gen.(mind.EpochObserver); ok {
		o.ObserveEpoch(e, obs)
	}
	if o, ok := s.Mind.(mind.EpochObserver); ok {
		o.ObserveEpoch(e, obs)
	}
}

// runLeaseEpoch charges rent and commitment cost, then drives the holder
// cycle by cycle under the Sentinel.
func (h *Harness) runLeaseEpoch(ctx context.Context, e int64) error {
	s := h.state
	l := s.Lease
	interval := h.cfg.RenewalCheckInterval

	rent := h.schedule.Rent(l.EClass, h.cfg.Resources.StepsCapEpoch)
	if rent > l.Budget.StepsPerEpoch {
		return h.expire(ctx, lease.ExpireBankruptcy, map[string]interface{}{
			"rent":   rent,
			"budget": l.Budget.StepsPerEpoch,
		})
	}
	afterRent := l.Budget.StepsPerEpoch - rent
	h.m.rentPaid += rent
	if err := h.emit(ctx, EventRentCharged, map[string]interface{}{
		"lease_id":         l.ID,
		"e_class":          l.EClass.String(),
		"rent":             rent,
		"steps_after_rent": afterRent,
	}); err != nil {
		return err
	}

	available := afterRent
	if s.Ledger != nil {
		var starved bool
		available, starved = s.Ledger.ChargeEpoch(afterRent)
		if starved {
			h.m.starvedEpochs++
			if err := h.emit(ctx, EventCommitmentStarved, map[string]interface{}{
				"active_cost":      s.Ledger.ActiveCost(),
				"steps_after_rent": afterRent,
			}); err != nil {
				return err
			}
		}
	}
	s.Sentinel.ResetEpoch(available)

	for c := 0; c < interval; c++ {
		s.Cycle = e*int64(interval) + int64(c)
		steps, actions, ext := s.Sentinel.Remaining()
		a := s.Mind.ProposeAction(mind.Observation{
			Cycle:                  s.Cycle,
			Epoch:                  e,
			CycleInEpoch:           c,
			CyclesPerEpoch:         interval,
			StepsRemaining:         steps,
			ActionsRemaining:       actions,
			ExternalCallsRemaining: ext,
		})
		if v := s.Sentinel.Admit(a); v != nil {
			return h.revoke(ctx, v, a)
		}
		if err := h.execute(ctx, e, a); err != nil {
			return err
		}
	}
	return nil
}

// execute applies the effects of an admitted action.
func (h *Harness) execute(ctx context.Context, e int64, a mind.Action) error {
	if a.Type == mind.ActionWait {
		return nil
	}
	s := h.state
	h.m.actions++
	h.logger.Debug("action executed", "cycle", s.Cycle, "action_type", a.Type, "key", a.Key)
	if s.Ledger == nil {
		return nil
	}
	h.m.traceSeq++
	s.Ledger.Record(commitment.TraceEntry{
		Seq:   h.m.traceSeq,
		Cycle: s.Cycle,
		Epoch: e,
		Type:  string(a.Type),
		Key:   a.Key,
		Ops:   a.Ops,
	})
	if a.Type != mind.ActionCommit {
		return nil
	}
	id, ok, reason := s.Ledger.Request(a.SpecID, e)
	if !ok {
		h.m.commitRejected++
		return h.emit(ctx, EventCommitmentRejected, map[string]interface{}{"spec_id": a.SpecID, "reason": reason})
	}
	h.m.commitAccepted++
	return h.emit(ctx, EventCommitmentAccepted, map[string]interface{}{"commitment_id": id, "spec_id": a.SpecID})
}

func (h *Harness) revoke(ctx context.Context, v *lease.Violation, a mind.Action) error {
	s := h.state
	l := s.Lease
	if err := l.Revoke(s.Cycle, v.Type); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, s.Cycle, s.Epoch, "%v", err)
	}
	h.m.revocations[string(v.Type)]++
	h.logger.Info("lease revoked", "lease_id", l.ID, "policy_id", l.PolicyID, "violation", v.Type, "cycle", s.Cycle)
	h.vacate()
	return h.emit(ctx, EventLeaseRevoked, map[string]interface{}{
		"lease_id":       l.ID,
		"policy_id":      l.PolicyID,
		"violation_type": string(v.Type),
		"detail":         v.Detail,
		"action_type":    string(a.Type),
	})
}

func (h *Harness) expire(ctx context.Context, reason lease.ExpirationReason, extra map[string]interface{}) error {
	s := h.state
	l := s.Lease
	if err := l.Expire(s.Cycle, reason); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, s.Cycle, s.Epoch, "%v", err)
	}
	h.m.expirations[string(reason)]++
	if reason != lease.ExpireBankruptcy {
		s.LastRenewal = mind.RenewalFailed
	}
	h.logger.Info("lease expired", "lease_id", l.ID, "policy_id", l.PolicyID, "reason", reason, "cycle", s.Cycle)
	h.vacate()
	payload := map[string]interface{}{
		"lease_id":      l.ID,
		"policy_id":     l.PolicyID,
		"reason":        string(reason),
		"renewal_count": l.RenewalCount,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return h.emit(ctx, EventLeaseExpired, payload)
}

// vacate withdraws authority from the holder with no grace period.
func (h *Harness) vacate() {
	s := h.state
	s.Sentinel.Unbind()
	s.Lease = nil
	s.Mind = nil
}

// endEpoch runs the epoch-end sequence: commitment evaluation, streak
// update, renewal check, lapse clock and finally the succession boundary.
func (h *Harness) endEpoch(ctx context.Context, e int64) error {
	s := h.state
	interval := int64(h.cfg.RenewalCheckInterval)
	s.Cycle = (e+1)*interval - 1
	inLapse := s.Constitution.InLapse()
	switch {
	case inLapse:
		h.m.recordAuthority(AuthorityLapsed)
	case s.Lease == nil:
		h.m.recordAuthority(AuthorityVacant)
	default:
		h.m.recordAuthority(AuthorityHeld)
	}

	pass := true
	if s.Ledger != nil {
		for _, r := range s.Ledger.EvaluateEpochEnd(e, inLapse) {
			h.m.resolutions[string(r.Outcome)]++
			if err := h.emit(ctx, EventCommitmentResolved, map[string]interface{}{
				"commitment_id": r.CommitmentID,
				"spec_id":       r.SpecID,
				"outcome":       string(r.Outcome),
				"window_start":  r.WindowStart,
				"window_end":    r.WindowEnd,
				"backlog":       r.Backlog,
				"reason":        r.Reason,
			}); err != nil {
				return err
			}
		}
		pass = s.Ledger.SemanticPass()
	}

	if s.Lease != nil && h.flags.Eligibility {
		if err := h.updateStreak(ctx, s.Lease.PolicyID, pass); err != nil {
			return err
		}
	}
	if !inLapse {
		s.Constitution.TickActive()
	}

	if s.Lease != nil {
		if err := h.renewalCheck(ctx, e); err != nil {
			return err
		}
	}

	if inLapse {
		if err := h.tickLapse(ctx, e); err != nil {
			return err
		}
	}

	if h.isBoundary(e) {
		reason := ""
		switch {
		case s.Constitution.InLapse():
			reason = "lapse"
		case s.Lease == nil:
			reason = "vacant"
		case h.flags.Eligibility && !s.Streaks.Eligible(s.Lease.PolicyID, h.cfg.Eligibility.K):
			reason = "ineligible"
		}
		if reason != "" {
			if err := h.succession(ctx, e, reason); err != nil {
				return err
			}
		}
	}
	return h.audit(e)
}

func (h *Harness) isBoundary(e int64) bool {
	return (e+1)%h.cfg.EpochsPerBoundary() == 0
}

func (h *Harness) updateStreak(ctx context.Context, policyID string, pass bool) error {
	s := h.state
	k := h.cfg.Eligibility.K
	before := s.Streaks.Get(policyID)
	if before >= k {
		h.m.zombieEpochs++
	}
	var err error
	if pass {
		err = s.Streaks.RecordPass(policyID)
	} else {
		err = s.Streaks.RecordFail(policyID)
	}
	if err != nil {
		return kernel.NewInvariantError(kernel.InvLapseStreakMutation, s.Cycle, s.Epoch, "%s: %v", policyID, err)
	}
	after := s.Streaks.Get(policyID)
	if after == before {
		return nil
	}
	return h.emit(ctx, EventStreakUpdated, map[string]interface{}{
		"policy_id":     policyID,
		"semantic_pass": pass,
		"streak_before": before,
		"streak":        after,
		"eligible":      after < k,
	})
}

// attestationMaxAge is the freshness window of a renewal attestation: it
// must be submitted in the cycle the Sentinel issued it.
const attestationMaxAge int64 = 0

// renewalCheck runs at every epoch end while a lease is held. The Sentinel
// issues an attestation to the holder, the holder relays it and the kernel
// verifies what comes back before renewing.
func (h *Harness) renewalCheck(ctx context.Context, e int64) error {
	s := h.state
	l := s.Lease
	if !l.CanRenew() {
		return h.expire(ctx, lease.ExpireMaxRenewals, nil)
	}
	if !s.Mind.RequestRenewal(e) {
		return h.expire(ctx, lease.ExpireAttestationMissing, nil)
	}
	nonce := fmt.Sprintf("%016x", h.noncePRNG.Uint64())
	issued, err := s.Sentinel.GenerateAttestation(nonce, s.Cycle)
	if err != nil {
		return h.expire(ctx, lease.ExpireAttestationMissing, map[string]interface{}{"error": err.Error()})
	}
	token := s.Mind.RelayAttestation(e, issued)
	if token == "" {
		return h.expire(ctx, lease.ExpireAttestationMissing, nil)
	}
	if _, err := s.Sentinel.VerifyAttestation(token, l.ID, s.Cycle, attestationMaxAge); err != nil {
		reason := lease.ExpireAttestationInvalid
		if errors.Is(err, lease.ErrAttestationStale) {
			reason = lease.ExpireAttestationStale
		}
		return h.expire(ctx, reason, map[string]interface{}{"error": err.Error()})
	}
	if err := l.Renew(); err != nil {
		return kernel.NewInvariantError(kernel.InvLeaseTransition, s.Cycle, e, "%v", err)
	}
	s.LastRenewal = mind.RenewalSucceeded
	h.m.renewals++
	h.logger.Debug("lease renewed", "lease_id", l.ID, "renewal_count", l.RenewalCount)
	return h.emit(ctx, EventLeaseRenewed, map[string]interface{}{
		"lease_id":      l.ID,
		"policy_id":     l.PolicyID,
		"renewal_count": l.RenewalCount,
		"nonce":         nonce,
	})
}

// tickLapse advances the lapse clock. Amnesty is the only streak mutation
// allowed while the table is sealed.
func (h *Harness) tickLapse(ctx context.Context, e int64) error {
	s := h.state
	before := s.Streaks.Snapshot()
	fired := s.Constitution.TickLapse()
	if fired {
		removed, err := s.Streaks.Decay(s.Constitution.AmnestyDecay())
		if err != nil {
			return kernel.NewInvariantError(kernel.InvLapseStreakMutation, s.Cycle, e, "amnesty: %v", err)
		}
		s.Constitution.RecordAmnesty(removed)
		h.logger.Info("amnesty applied", "epoch", e, "lapse_epochs", s.Constitution.LapseEpochCount(), "mass_removed", removed)
		if err := h.emit(ctx, EventAmnesty, map[string]interface{}{
			"lapse_epoch_count": s.Constitution.LapseEpochCount(),
			"decay":             s.Constitution.AmnestyDecay(),
			"mass_removed":      removed,
			"mass_after":        s.Streaks.Mass(),
		}); err != nil {
			return err
		}
	}
	return checkLapseMutation(before, s.Streaks.Snapshot(), fired, s.Cycle, e)
}
