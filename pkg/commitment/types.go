package commitment

// Status defines the lifecycle state of a commitment.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSatisfied Status = "SATISFIED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Spec is a registered commitment type.
type Spec struct {
	ID         string `json:"spec_id"`
	VerifierID string `json:"verifier_id"`
	Window     int    `json:"window"` // epochs
	Cost       int    `json:"cost"`   // steps per epoch
	Expr       string `json:"expr"`   // CEL predicate over `trace`
}

// Commitment is a persistent semantic obligation.
type Commitment struct {
	ID           string `json:"commitment_id"`
	SpecID       string `json:"spec_id"`
	VerifierID   string `json:"verifier_id"`
	Window       int    `json:"window"`
	Cost         int    `json:"cost"`
	Status       Status `json:"status"`
	CreatedEpoch int64  `json:"created_epoch"`
	WindowStart  int64  `json:"window_start"`
	Genesis      bool   `json:"genesis"`
	// Recurring commitments re-arm after each resolution; only genesis
	// commitments recur.
	Recurring bool `json:"recurring"`
	// LastOutcome is the most recent window resolution ("" before the first).
	LastOutcome Status `json:"last_outcome,omitempty"`
	// Starved is set when the current window could not be funded.
	Starved   bool `json:"starved"`
	Satisfied int  `json:"satisfied"`
	Failed    int  `json:"failed"`
	Expired   int  `json:"expired"`
	// queued marks a one-shot commitment whose window closed during a lapse
	// and now waits in the backlog.
	queued bool
}

// TraceEntry is one executed action as seen by verifiers.
type TraceEntry struct {
	Seq   int64  `json:"seq"`
	Cycle int64  `json:"cycle"`
	Epoch int64  `json:"epoch"`
	Type  string `json:"type"`
	Key   string `json:"key,omitempty"`
	Ops   int    `json:"ops,omitempty"`
}

// Resolution records the outcome of one commitment window.
type Resolution struct {
	CommitmentID string `json:"commitment_id"`
	SpecID       string `json:"spec_id"`
	Outcome      Status `json:"outcome"`
	WindowStart  int64  `json:"window_start"`
	WindowEnd    int64  `json:"window_end"`
	Backlog      bool   `json:"backlog"`
	Reason       string `json:"reason,omitempty"`
}

// Request outcome reasons.
const (
	ReasonAccepted    = "accepted"
	ReasonUnknownSpec = "unknown_spec"
	ReasonCapExceeded = "commit_cap_exceeded"
)

// Resolution reasons.
const (
	ReasonVerified     = "verified"
	ReasonNotVerified  = "verifier_rejected"
	ReasonNoTrace      = "verifier_never_fired"
	ReasonStarved      = "unfunded_window"
	ReasonVerifierFail = "verifier_error"
)

// DefaultCatalog returns the built-in genesis specs.
func DefaultCatalog() map[string]Spec {
	return map[string]Spec{
		"CMT_PRESENCE_LOG": {
			ID: "CMT_PRESENCE_LOG", VerifierID: "VRF_PRESENCE", Window: 1, Cost: 2,
			Expr: `trace.exists(a, a.type == "LOG")`,
		},
		"CMT_STATE_ECHO": {
			ID: "CMT_STATE_ECHO", VerifierID: "VRF_STATE_ECHO", Window: 2, Cost: 4,
			Expr: `trace.exists(s, s.type == "STATE_SET" && trace.exists(g, g.type == "STATE_GET" && g.key == s.key && g.seq > s.seq))`,
		},
		"CMT_COMPOSED_OP": {
			ID: "CMT_COMPOSED_OP", VerifierID: "VRF_COMPOSED", Window: 3, Cost: 6,
			Expr: `trace.exists(a, (a.type == "SEQUENCE" || a.type == "BATCH") && a.ops >= 2)`,
		},
	}
}
