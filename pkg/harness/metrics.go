package harness

import (
	"github.com/macterra/Axio-sub003/pkg/commitment"
	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/constitution"
	"github.com/macterra/Axio-sub003/pkg/rsa"
)

type metrics struct {
	epochs         int
	authority      []EpochAuthority
	heldEpochs     int
	nonLapseEpochs int
	zombieEpochs   int
	attempts       int
	endorsements   int
	supersessions  int
	renewals       int
	lcpRejections  int
	expirations    map[string]int
	revocations    map[string]int
	resolutions    map[string]int
	events         map[string]int
	rentPaid       int
	starvedEpochs  int
	actions        int
	traceSeq       int64
	commitAccepted int
	commitRejected int
	stoppedOnLapse bool
}

func newMetrics() metrics {
	return metrics{
		expirations: make(map[string]int),
		revocations: make(map[string]int),
		resolutions: make(map[string]int),
		events:      make(map[string]int),
	}
}

func (m *metrics) recordAuthority(a EpochAuthority) {
	m.authority = append(m.authority, a)
	if a == AuthorityHeld {
		m.heldEpochs++
	}
	if a != AuthorityLapsed {
		m.nonLapseEpochs++
	}
}

// CommitmentStats aggregates the ledger outcomes of a run.
type CommitmentStats struct {
	CommitCap     int `json:"commit_cap"`
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
	Satisfied     int `json:"satisfied"`
	Failed        int `json:"failed"`
	Expired       int `json:"expired"`
	StarvedEpochs int `json:"starved_epochs"`
	MaxBacklog    int `json:"max_backlog"`
}

// Summary is the result record of one run.
type Summary struct {
	RunID              string              `json:"run_id"`
	Seed               int64               `json:"seed"`
	Version            string              `json:"version"`
	ConfigHash         string              `json:"config_hash"`
	Features           config.FeatureSet   `json:"features"`
	Epochs             int                 `json:"epochs"`
	Cycles             int64               `json:"cycles"`
	Successions        int                 `json:"s_star"`
	SuccessionAttempts int                 `json:"succession_attempts"`
	Renewals           int                 `json:"renewals"`
	Expirations        map[string]int      `json:"expirations"`
	Revocations        map[string]int      `json:"revocations"`
	LCPRejections      int                 `json:"lcp_rejections"`
	RentPaid           int                 `json:"rent_paid"`
	Actions            int                 `json:"actions"`
	Lapse              constitution.Stats  `json:"lapse"`
	LapseHistogram     map[int]int         `json:"lapse_histogram"`
	ZombieEpochs       int                 `json:"zombie_epochs"`
	ActiveEpochs       int                 `json:"active_epochs"`
	// AuthorityEpochs counts epochs outside NULL_AUTHORITY, vacant seats
	// included. AA and AAA use ActiveEpochs.
	AuthorityEpochs    int                 `json:"authority_epochs"`
	AA                 float64             `json:"aa"`
	AAA                float64             `json:"aaa"`
	TailLapses         int                 `json:"tail_lapses"`
	Commitments        *CommitmentStats    `json:"commitments,omitempty"`
	Streaks            map[string]int      `json:"streaks"`
	Adversary          *rsa.Report         `json:"adversary,omitempty"`
	Rejected           bool                `json:"rejected"`
	StoppedOnLapse     bool                `json:"stopped_on_lapse"`
	Classification     Classification      `json:"classification"`
	EventCount         uint64              `json:"event_count"`
	EventLogHash       string              `json:"event_log_hash"`
	Resolutions        map[string]int      `json:"resolutions,omitempty"`
}

func (h *Harness) summarize() *Summary {
	s := h.state
	m := &h.m
	lapse := s.Constitution.Stats()
	hist := make(map[int]int)
	for _, ep := range lapse.Episodes {
		hist[ep.LapseEpochs]++
	}
	cls := Classify(m.authority, m.stoppedOnLapse)

	out := &Summary{
		RunID:              h.runID,
		Seed:               h.cfg.Seed,
		Version:            h.cfg.Version,
		ConfigHash:         h.configHash,
		Features:           h.flags,
		Epochs:             m.epochs,
		Cycles:             int64(m.epochs) * int64(h.cfg.RenewalCheckInterval),
		Successions:        s.Successions,
		SuccessionAttempts: m.attempts,
		Renewals:           m.renewals,
		Expirations:        m.expirations,
		Revocations:        m.revocations,
		LCPRejections:      m.lcpRejections,
		RentPaid:           m.rentPaid,
		Actions:            m.actions,
		Lapse:              lapse,
		LapseHistogram:     hist,
		ZombieEpochs:       m.zombieEpochs,
		ActiveEpochs:       m.heldEpochs,
		AuthorityEpochs:    m.nonLapseEpochs,
		AAA:                cls.AAA,
		TailLapses:         cls.TailLapses,
		Streaks:            s.Streaks.Snapshot(),
		StoppedOnLapse:     m.stoppedOnLapse,
		Classification:     cls.Class,
		Resolutions:        m.resolutions,
	}
	if m.epochs > 0 {
		out.AA = float64(m.heldEpochs) / float64(m.epochs)
	}
	if s.Ledger != nil {
		out.Commitments = &CommitmentStats{
			CommitCap:     s.Ledger.CommitCap(),
			Accepted:      m.commitAccepted,
			Rejected:      m.commitRejected,
			Satisfied:     m.resolutions[string(commitment.StatusSatisfied)],
			Failed:        m.resolutions[string(commitment.StatusFailed)],
			Expired:       m.resolutions[string(commitment.StatusExpired)],
			StarvedEpochs: m.starvedEpochs,
			MaxBacklog:    s.Ledger.MaxBacklog(),
		}
	}
	if h.adversary != nil {
		rep := h.adversary.Report()
		out.Adversary = &rep
		out.Rejected = rep.Rejected
	}
	return out
}
