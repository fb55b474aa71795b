package kernel

import "fmt"

// Deterministic error codes for configuration errors. These abort a run
// before its first cycle.
const (
	ErrConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrConfigRentSchedule  = "ERR_CONFIG_RENT_SCHEDULE"
	ErrConfigGenesisEmpty  = "ERR_CONFIG_GENESIS_EMPTY"
	ErrConfigGenesisReseed = "ERR_CONFIG_GENESIS_RESEED"
	ErrConfigAdversary     = "ERR_CONFIG_ADVERSARY"
	ErrConfigCommitCap     = "ERR_CONFIG_COMMIT_CAP"
)

// Invariant check identifiers. An InvariantError means the kernel itself is
// wrong; it is never an experimental outcome.
const (
	InvSingleActiveLease   = "INV_SINGLE_ACTIVE_LEASE"
	InvLapseStreakMutation = "INV_LAPSE_STREAK_MUTATION"
	InvStreakNonNegative   = "INV_STREAK_NON_NEGATIVE"
	InvOffScheduleSuccess  = "INV_OFF_SCHEDULE_SUCCESSION"
	InvRentBeforeCommit    = "INV_RENT_BEFORE_COMMITMENT"
	InvLeaseTransition     = "INV_LEASE_TRANSITION"
	InvSuccessionCount     = "INV_SUCCESSION_COUNT"
	InvEventLog            = "INV_EVENT_LOG"
)

// ConfigError is a fatal pre-run configuration error.
type ConfigError struct {
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail"`
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// NewConfigError builds a ConfigError.
func NewConfigError(code, field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Code: code, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// InvariantError reports a violated kernel invariant with enough context to
// reproduce it from the run seed.
type InvariantError struct {
	Check  string `json:"check"`
	Cycle  int64  `json:"cycle"`
	Epoch  int64  `json:"epoch"`
	Detail string `json:"detail"`
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated at cycle %d (epoch %d): %s", e.Check, e.Cycle, e.Epoch, e.Detail)
}

// NewInvariantError builds an InvariantError.
func NewInvariantError(check string, cycle, epoch int64, format string, args ...interface{}) *InvariantError {
	return &InvariantError{Check: check, Cycle: cycle, Epoch: epoch, Detail: fmt.Sprintf(format, args...)}
}
