package biometric

import "github.com/MrEthical07/goTrust/store"

// DefaultFailureThreshold is the failed-match count that locks a template.
const DefaultFailureThreshold = 5

// State of an enrolled template.
type State string

const (
	StatePending  State = "PENDING_VERIFICATION"
	StateVerified State = "VERIFIED"
	StateLocked   State = "LOCKED"
)

// StateOf derives the template state from its stored flags.
func StateOf(t store.Template, threshold int) State {
	if t.IsVerified {
		return StateVerified
	}
	if threshold > 0 && t.FailedMatches >= threshold {
		return StateLocked
	}
	return StatePending
}
