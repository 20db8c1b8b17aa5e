package parsing

// State is a step of one parsing run.
type State string

const (
	StateStart       State = "START"
	StateNormalizing State = "NORMALIZING"
	StateTrying      State = "TRYING_STRATEGY"
	StateValidating  State = "VALIDATING"
	StateCorrecting  State = "CORRECTING"
	StateRecovering  State = "RECOVERING"
	StateDone        State = "DONE"
)

// IsTerminal reports whether the run has finished.
func IsTerminal(s State) bool { return s == StateDone }

// isAllowedTransition encodes the run state machine. Every non-terminal
// state may fall through to RECOVERING on cancellation.
func isAllowedTransition(from, to State) bool {
	switch from {
	case StateStart:
		return to == StateNormalizing || to == StateRecovering
	case StateNormalizing:
		return to == StateTrying || to == StateRecovering
	case StateTrying:
		return to == StateValidating || to == StateTrying || to == StateRecovering
	case StateValidating:
		return to == StateDone || to == StateCorrecting || to == StateRecovering
	case StateCorrecting:
		return to == StateDone || to == StateTrying || to == StateRecovering
	case StateRecovering:
		return to == StateDone
	default:
		return false
	}
}
