package batch

import "slices"

// SessionState is used to ensure that the per-invoice signing protocol steps
// are sequenced correctly.
type SessionState string

const (
	SessionStateUnset        SessionState = ""
	SessionStateLoaded       SessionState = "LOADED"
	SessionStatePreparing    SessionState = "PREPARING"
	SessionStatePrepared     SessionState = "PREPARED"
	SessionStateAgentSigning SessionState = "AGENT_SIGNING"
	SessionStateAgentSigned  SessionState = "AGENT_SIGNED"
	SessionStateCompleting   SessionState = "COMPLETING"
	SessionStateSigned       SessionState = "SIGNED"
	SessionStateFailed       SessionState = "FAILED"
)

// Every protocol step may fail, so FAILED is reachable from every
// non-terminal state. SIGNED and FAILED are terminal and mutually exclusive.
var validSessionStateTransitions = map[SessionState][]SessionState{
	SessionStateLoaded:       {SessionStatePreparing, SessionStateFailed},
	SessionStatePreparing:    {SessionStatePrepared, SessionStateFailed},
	SessionStatePrepared:     {SessionStateAgentSigning, SessionStateFailed},
	SessionStateAgentSigning: {SessionStateAgentSigned, SessionStateFailed},
	SessionStateAgentSigned:  {SessionStateCompleting, SessionStateFailed},
	SessionStateCompleting:   {SessionStateSigned, SessionStateFailed},
	SessionStateSigned:       {}, // terminal state
	SessionStateFailed:       {}, // terminal state
}

// isValidSessionStateTransition checks if a transition from currentState to
// nextState is allowed.
//
// Returns true if the transition is allowed, false otherwise.
func isValidSessionStateTransition(currentState, nextState SessionState) bool {
	validTransitions, ok := validSessionStateTransitions[currentState]
	if !ok {
		return false
	}
	return slices.Contains(validTransitions, nextState)
}

// IsTerminal reports whether s is a terminal state.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateSigned || s == SessionStateFailed
}
