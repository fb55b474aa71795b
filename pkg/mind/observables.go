package mind

// AuthorityStatus is the constitutional state as seen from the working-mind slot.
type AuthorityStatus string

const (
	AuthorityActive AuthorityStatus = "HAS_AUTHORITY"
	AuthorityNull   AuthorityStatus = "NULL_AUTHORITY"
)

// RenewalOutcome is the result of the most recent renewal check.
type RenewalOutcome string

const (
	RenewalSucceeded    RenewalOutcome = "SUCCEEDED"
	RenewalFailed       RenewalOutcome = "FAILED"
	RenewalNotAttempted RenewalOutcome = "NOT_ATTEMPTED"
)

// CTAPhase buckets the position inside the current amnesty interval.
type CTAPhase string

const (
	CTAInactive CTAPhase = "INACTIVE"
	CTAEarly    CTAPhase = "EARLY"
	CTAMid      CTAPhase = "MID"
	CTALate     CTAPhase = "LATE"
)

// EligibilityBucket buckets a policy's streak relative to K.
type EligibilityBucket string

const (
	EligibilitySafe       EligibilityBucket = "SAFE"
	EligibilityEdge       EligibilityBucket = "EDGE"
	EligibilityIneligible EligibilityBucket = "INELIGIBLE"
)

// Observables is the frozen, bucketed signal set published to the
// working-mind slot at each epoch start. Nothing else about kernel state is
// visible to a mind.
type Observables struct {
	Authority   AuthorityStatus   `json:"authority"`
	LapseSeen   bool              `json:"lapse_occurred"`
	Renewal     RenewalOutcome    `json:"renewal"`
	CTA         CTAPhase          `json:"cta_phase"`
	Eligibility EligibilityBucket `json:"eligibility"`
}

// AllObservables enumerates every observable combination.
func AllObservables() []Observables {
	var out []Observables
	for _, a := range []AuthorityStatus{AuthorityActive, AuthorityNull} {
		for _, l := range []bool{false, true} {
			for _, r := range []RenewalOutcome{RenewalSucceeded, RenewalFailed, RenewalNotAttempted} {
				for _, c := range []CTAPhase{CTAInactive, CTAEarly, CTAMid, CTALate} {
					for _, e := range []EligibilityBucket{EligibilitySafe, EligibilityEdge, EligibilityIneligible} {
						out = append(out, Observables{Authority: a, LapseSeen: l, Renewal: r, CTA: c, Eligibility: e})
					}
				}
			}
		}
	}
	return out
}

// BucketEligibility maps a streak to its bucket: INELIGIBLE at or above k,
// EDGE one below, SAFE otherwise.
func BucketEligibility(streak, k int) EligibilityBucket {
	switch {
	case streak >= k:
		return EligibilityIneligible
	case streak == k-1:
		return EligibilityEdge
	default:
		return EligibilitySafe
	}
}

// BucketCTA maps the lapse epoch count to a phase of the amnesty interval.
// Outside a lapse, or with amnesty disabled, the phase is INACTIVE.
func BucketCTA(inLapse bool, lapseEpochs, interval int) CTAPhase {
	if !inLapse || interval <= 0 {
		return CTAInactive
	}
	pos := lapseEpochs % interval
	switch {
	case pos*3 < interval:
		return CTAEarly
	case pos*3 < 2*interval:
		return CTAMid
	default:
		return CTALate
	}
}
