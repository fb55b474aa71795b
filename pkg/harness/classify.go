package harness

// Classification is the closed failure taxonomy of a run.
type Classification string

const (
	StableAuthority     Classification = "STABLE_AUTHORITY"
	BoundedDegradation  Classification = "BOUNDED_DEGRADATION"
	StructuralThrashing Classification = "STRUCTURAL_THRASHING"
	AsymptoticDoS       Classification = "ASYMPTOTIC_DOS"
	PermanentLapse      Classification = "PERMANENT_LAPSE"
)

// Frozen classifier thresholds.
const (
	TailPercent         = 20
	DoSThreshold        = 0.10
	ThrashingThreshold  = 0.50
	StableThreshold     = 0.90
	ThrashingTailLapses = 3
)

// EpochAuthority is one entry of the per-epoch availability series.
type EpochAuthority uint8

const (
	// AuthorityHeld means an ACTIVE lease was held at epoch end.
	AuthorityHeld EpochAuthority = iota
	// AuthorityVacant is a seat left empty by revocation or expiration,
	// outside NULL_AUTHORITY.
	AuthorityVacant
	// AuthorityLapsed is an epoch spent in NULL_AUTHORITY.
	AuthorityLapsed
)

// ClassResult is the classifier output with the tail statistics it used.
type ClassResult struct {
	Class      Classification `json:"classification"`
	AAA        float64        `json:"aaa"`
	TailLapses int            `json:"tail_lapses"`
	TailStart  int            `json:"tail_start"`
}

// Classify maps a per-epoch availability series to a failure class. The
// tail is the last 20% of epochs (at least one); AAA is the fraction of tail
// epochs with an ACTIVE lease. A tail loss is a maximal run of epochs
// without one. PERMANENT_LAPSE needs NULL_AUTHORITY over the whole tail; a
// seat that is merely vacant degrades AAA instead.
func Classify(series []EpochAuthority, stoppedOnLapse bool) ClassResult {
	n := len(series)
	if n == 0 {
		return ClassResult{Class: PermanentLapse}
	}
	tail := n * TailPercent / 100
	if tail < 1 {
		tail = 1
	}
	start := n - tail
	held, lapsed, losses := 0, 0, 0
	for i := start; i < n; i++ {
		switch series[i] {
		case AuthorityHeld:
			held++
			continue
		case AuthorityLapsed:
			lapsed++
		}
		if i == start || series[i-1] == AuthorityHeld {
			losses++
		}
	}
	r := ClassResult{AAA: float64(held) / float64(tail), TailLapses: losses, TailStart: start}
	switch {
	case stoppedOnLapse || lapsed == tail:
		r.Class = PermanentLapse
	case r.AAA < DoSThreshold:
		r.Class = AsymptoticDoS
	case losses >= ThrashingTailLapses && r.AAA < ThrashingThreshold:
		r.Class = StructuralThrashing
	case r.AAA >= StableThreshold && losses == 0:
		r.Class = StableAuthority
	default:
		r.Class = BoundedDegradation
	}
	return r
}
