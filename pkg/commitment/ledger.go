package commitment

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// Ledger holds every commitment of a run. It persists across leases,
// successions and lapses; commitments leave the active set only by
// resolution.
type Ledger struct {
	catalog   map[string]Spec
	verifiers map[string]Verifier
	commitCap int

	commitments map[string]*Commitment
	order       []string
	seeded      bool
	nextID      int

	trace       []TraceEntry
	lapseEpochs map[int64]bool
	backlog     []backlogItem
	maxBacklog  int

	logger *slog.Logger
}

type backlogItem struct {
	id          string
	windowStart int64
	windowEnd   int64
	starved     bool
}

// CommitCap returns floor(alpha * stepsCap).
func CommitCap(alpha float64, stepsCap int) int {
	return int(math.Floor(alpha*float64(stepsCap) + 1e-9))
}

// NewLedger compiles a verifier for every spec in catalog. A nil catalog
// means DefaultCatalog.
func NewLedger(catalog map[string]Spec, commitCap int) (*Ledger, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if commitCap < 0 {
		return nil, kernel.NewConfigError(kernel.ErrConfigCommitCap, "commitments.alpha", "commit cap %d is negative", commitCap)
	}
	l := &Ledger{
		catalog:     catalog,
		verifiers:   make(map[string]Verifier, len(catalog)),
		commitCap:   commitCap,
		commitments: make(map[string]*Commitment),
		lapseEpochs: make(map[int64]bool),
		logger:      slog.Default().With("component", "commitment"),
	}
	for _, id := range sortedSpecIDs(catalog) {
		spec := catalog[id]
		if spec.Window < 1 || spec.Cost < 0 {
			return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "commitments.catalog."+id, "window %d / cost %d out of range", spec.Window, spec.Cost)
		}
		if _, ok := l.verifiers[spec.VerifierID]; ok {
			continue
		}
		v, err := NewCELVerifier(spec.VerifierID, spec.Expr)
		if err != nil {
			return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "commitments.catalog."+id, "%v", err)
		}
		l.verifiers[spec.VerifierID] = v
	}
	return l, nil
}

// SeedGenesis installs the genesis commitments at epoch. It may be called
// exactly once and must leave a non-empty active set.
func (l *Ledger) SeedGenesis(specIDs []string, epoch int64) error {
	if l.seeded {
		return kernel.NewConfigError(kernel.ErrConfigGenesisReseed, "commitments.genesis", "genesis already seeded")
	}
	if len(specIDs) == 0 {
		return kernel.NewConfigError(kernel.ErrConfigGenesisEmpty, "commitments.genesis", "genesis set is empty")
	}
	total := 0
	for _, id := range specIDs {
		spec, ok := l.catalog[id]
		if !ok {
			return kernel.NewConfigError(kernel.ErrConfigInvalid, "commitments.genesis", "unknown spec %q", id)
		}
		total += spec.Cost
	}
	if total > l.commitCap {
		return kernel.NewConfigError(kernel.ErrConfigCommitCap, "commitments.genesis", "genesis cost %d exceeds commit cap %d", total, l.commitCap)
	}
	for _, id := range specIDs {
		c := l.add(l.catalog[id], epoch)
		c.Genesis = true
		c.Recurring = true
	}
	l.seeded = true
	return nil
}

// Request asks for a one-shot runtime commitment. Rejection is not an error;
// the reason is returned for the event log.
func (l *Ledger) Request(specID string, epoch int64) (string, bool, string) {
	spec, ok := l.catalog[specID]
	if !ok {
		return "", false, ReasonUnknownSpec
	}
	if l.ActiveCost()+spec.Cost > l.commitCap {
		l.logger.Debug("commitment rejected", "spec_id", specID, "active_cost", l.ActiveCost(), "cap", l.commitCap)
		return "", false, ReasonCapExceeded
	}
	c := l.add(spec, epoch)
	return c.ID, true, ReasonAccepted
}

func (l *Ledger) add(spec Spec, epoch int64) *Commitment {
	l.nextID++
	c := &Commitment{
		ID:           fmt.Sprintf("cmt-%04d", l.nextID),
		SpecID:       spec.ID,
		VerifierID:   spec.VerifierID,
		Window:       spec.Window,
		Cost:         spec.Cost,
		Status:       StatusActive,
		CreatedEpoch: epoch,
		WindowStart:  epoch,
	}
	l.commitments[c.ID] = c
	l.order = append(l.order, c.ID)
	return c
}

// ActiveCost is the per-epoch cost of every ACTIVE commitment.
func (l *Ledger) ActiveCost() int {
	total := 0
	for _, id := range l.order {
		if c := l.commitments[id]; c.Status == StatusActive && !c.queued {
			total += c.Cost
		}
	}
	return total
}

// ChargeEpoch pays the active cost from the steps left after rent. When the
// budget cannot cover it nothing is charged and every active window is
// marked starved. It returns the remaining steps.
func (l *Ledger) ChargeEpoch(stepsAfterRent int) (int, bool) {
	cost := l.ActiveCost()
	if cost <= stepsAfterRent {
		return stepsAfterRent - cost, false
	}
	for _, id := range l.order {
		if c := l.commitments[id]; c.Status == StatusActive && !c.queued {
			c.Starved = true
		}
	}
	l.logger.Debug("commitment cost unpayable", "cost", cost, "steps", stepsAfterRent)
	return stepsAfterRent, true
}

// Record appends an executed action to the verifier trace.
func (l *Ledger) Record(e TraceEntry) {
	l.trace = append(l.trace, e)
}

// EvaluateEpochEnd closes every window ending at epoch. During a lapse the
// closed windows are queued; the first evaluation outside a lapse resolves
// the queued backlog before the current windows.
func (l *Ledger) EvaluateEpochEnd(epoch int64, inLapse bool) []Resolution {
	var out []Resolution
	if inLapse {
		l.lapseEpochs[epoch] = true
	} else if len(l.backlog) > 0 {
		for _, item := range l.backlog {
			c := l.commitments[item.id]
			r := l.resolve(c, item.windowStart, item.windowEnd, item.starved)
			r.Backlog = true
			out = append(out, r)
		}
		l.backlog = l.backlog[:0]
	}

	for _, id := range l.order {
		c := l.commitments[id]
		if c.Status != StatusActive || c.queued || epoch-c.WindowStart+1 < int64(c.Window) {
			continue
		}
		if inLapse {
			l.backlog = append(l.backlog, backlogItem{id: id, windowStart: c.WindowStart, windowEnd: epoch, starved: c.Starved})
			if c.Recurring {
				c.WindowStart = epoch + 1
				c.Starved = false
			} else {
				c.queued = true
			}
			continue
		}
		out = append(out, l.resolve(c, c.WindowStart, epoch, c.Starved))
		if c.Recurring && c.Status == StatusActive {
			c.WindowStart = epoch + 1
			c.Starved = false
		}
	}
	if len(l.backlog) > l.maxBacklog {
		l.maxBacklog = len(l.backlog)
	}
	l.prune()
	return out
}

func (l *Ledger) resolve(c *Commitment, start, end int64, starved bool) Resolution {
	r := Resolution{CommitmentID: c.ID, SpecID: c.SpecID, WindowStart: start, WindowEnd: end}
	window := l.window(start, end)
	switch {
	case len(window) == 0:
		r.Outcome, r.Reason = StatusExpired, ReasonNoTrace
	case starved:
		r.Outcome, r.Reason = StatusFailed, ReasonStarved
	default:
		ok, err := l.verifiers[c.VerifierID].Verify(window)
		switch {
		case err != nil:
			r.Outcome, r.Reason = StatusFailed, ReasonVerifierFail
			l.logger.Warn("verifier error", "commitment_id", c.ID, "error", err)
		case ok:
			r.Outcome, r.Reason = StatusSatisfied, ReasonVerified
		default:
			r.Outcome, r.Reason = StatusFailed, ReasonNotVerified
		}
	}
	c.LastOutcome = r.Outcome
	switch r.Outcome {
	case StatusSatisfied:
		c.Satisfied++
	case StatusFailed:
		c.Failed++
	case StatusExpired:
		c.Expired++
	}
	if !c.Recurring {
		c.Status = r.Outcome
		c.queued = false
	}
	return r
}

// window returns the trace entries of [start, end] outside lapse epochs.
func (l *Ledger) window(start, end int64) []TraceEntry {
	var out []TraceEntry
	for _, e := range l.trace {
		if e.Epoch < start || e.Epoch > end || l.lapseEpochs[e.Epoch] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// prune drops trace entries no open or queued window can reach.
func (l *Ledger) prune() {
	low := int64(math.MaxInt64)
	for _, id := range l.order {
		if c := l.commitments[id]; c.Status == StatusActive && c.WindowStart < low {
			low = c.WindowStart
		}
	}
	for _, item := range l.backlog {
		if item.windowStart < low {
			low = item.windowStart
		}
	}
	i := 0
	for i < len(l.trace) && l.trace[i].Epoch < low {
		i++
	}
	if i > 0 {
		l.trace = append(l.trace[:0], l.trace[i:]...)
	}
	for e := range l.lapseEpochs {
		if e < low {
			delete(l.lapseEpochs, e)
		}
	}
}

// SemanticPass reports whether every genesis commitment's latest outcome is
// SATISFIED or still pending its first window.
func (l *Ledger) SemanticPass() bool {
	for _, id := range l.order {
		c := l.commitments[id]
		if c.Genesis && c.LastOutcome != "" && c.LastOutcome != StatusSatisfied {
			return false
		}
	}
	return true
}

// Backlog is the number of windows waiting for evaluation.
func (l *Ledger) Backlog() int { return len(l.backlog) }

// MaxBacklog is the largest backlog observed in the run.
func (l *Ledger) MaxBacklog() int { return l.maxBacklog }

// CommitCap returns the active-cost ceiling.
func (l *Ledger) CommitCap() int { return l.commitCap }

// Get returns a copy of a commitment.
func (l *Ledger) Get(id string) (Commitment, bool) {
	c, ok := l.commitments[id]
	if !ok {
		return Commitment{}, false
	}
	return *c, true
}

// Snapshot returns copies of every commitment in creation order.
func (l *Ledger) Snapshot() []Commitment {
	out := make([]Commitment, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.commitments[id])
	}
	return out
}

func sortedSpecIDs(catalog map[string]Spec) []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
