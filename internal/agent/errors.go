package agent

import "fmt"

// Error represents a structured error from the agent package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeNotRunning indicates nothing is listening on the agent
	// endpoint: the signing agent process is not running on this machine.
	ErrCodeNotRunning ErrorCode = "agent_not_running"

	// ErrCodeSign indicates the agent was reached but the sign operation
	// failed or returned an incomplete response.
	ErrCodeSign ErrorCode = "sign"

	// ErrCodeAgent indicates any other failure talking to the agent.
	ErrCodeAgent ErrorCode = "agent"
)

// AgentError represents a structured error from the agent package.
type AgentError struct {

	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *AgentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *AgentError) Code() ErrorCode { return e.code }
func (e *AgentError) Unwrap() error   { return e.wrapped }

// NewNotRunningError creates an error indicating the agent process is not
// running. Callers should tell the user to start the signing agent, as
// opposed to inserting a card (which is the empty-certificate-list case).
func NewNotRunningError(msg string) error {
	return &AgentError{code: ErrCodeNotRunning, message: msg}
}

// WrapNotRunningError wraps an existing error as an agent-not-running error.
func WrapNotRunningError(err error, msg string) error {
	return &AgentError{code: ErrCodeNotRunning, message: msg, wrapped: err}
}

// NewSignError creates an error for a failed agent sign operation.
func NewSignError(msg string) error {
	return &AgentError{code: ErrCodeSign, message: msg}
}

// WrapSignError wraps an existing error as a failed agent sign operation.
func WrapSignError(err error, msg string) error {
	return &AgentError{code: ErrCodeSign, message: msg, wrapped: err}
}

// WrapAgentError wraps any other agent communication failure.
func WrapAgentError(err error, msg string) error {
	return &AgentError{code: ErrCodeAgent, message: msg, wrapped: err}
}
