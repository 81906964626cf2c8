package remote

import "fmt"

// Error represents a structured error from the remote package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeSessionExpired indicates the signing session on the server has
	// expired. Terminal: the user has to restart the flow from a fresh link.
	ErrCodeSessionExpired ErrorCode = "session_expired"

	// ErrCodeInvalidLink indicates the document link is unknown to the server
	// or resolved to an empty batch.
	ErrCodeInvalidLink ErrorCode = "invalid_link"

	// ErrCodeServer indicates a transient server or transport failure.
	ErrCodeServer ErrorCode = "server"

	// ErrCodePrepare indicates the prepare call failed for one invoice.
	ErrCodePrepare ErrorCode = "prepare"

	// ErrCodeComplete indicates the complete call failed for one invoice.
	ErrCodeComplete ErrorCode = "complete"

	// ErrCodePDFFetch indicates the invoice PDF could not be downloaded.
	ErrCodePDFFetch ErrorCode = "pdf_fetch"
)

// RemoteError represents a structured error from the remote package.
type RemoteError struct {

	// code is the error code
	code ErrorCode

	// invoiceID identifies the invoice the error relates to (empty for
	// batch-level errors such as accept failures)
	invoiceID string

	// message is a human-readable error message; server-supplied messages
	// are preferred over generic text
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *RemoteError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *RemoteError) Code() ErrorCode   { return e.code }
func (e *RemoteError) InvoiceID() string { return e.invoiceID }
func (e *RemoteError) Unwrap() error     { return e.wrapped }

// NewSessionExpiredError creates an error for an expired signing session.
// The caller should tell the user to request a fresh signing link.
func NewSessionExpiredError(msg string) error {
	return &RemoteError{code: ErrCodeSessionExpired, message: msg}
}

// NewInvalidLinkError creates an error for an unknown or empty document link.
func NewInvalidLinkError(msg string) error {
	return &RemoteError{code: ErrCodeInvalidLink, message: msg}
}

// NewServerError creates an error for a transient server failure.
func NewServerError(msg string) error {
	return &RemoteError{code: ErrCodeServer, message: msg}
}

// WrapServerError wraps an existing error as a transient server failure,
// adding context while preserving the original error for inspection.
func WrapServerError(err error, msg string) error {
	return &RemoteError{code: ErrCodeServer, message: msg, wrapped: err}
}

// NewPrepareError creates an error for a failed prepare call on one invoice.
func NewPrepareError(invoiceID, msg string) error {
	return &RemoteError{code: ErrCodePrepare, invoiceID: invoiceID, message: msg}
}

// WrapPrepareError wraps an existing error as a prepare failure on one invoice.
func WrapPrepareError(err error, invoiceID, msg string) error {
	return &RemoteError{code: ErrCodePrepare, invoiceID: invoiceID, message: msg, wrapped: err}
}

// NewCompleteError creates an error for a failed complete call on one invoice.
func NewCompleteError(invoiceID, msg string) error {
	return &RemoteError{code: ErrCodeComplete, invoiceID: invoiceID, message: msg}
}

// WrapCompleteError wraps an existing error as a complete failure on one invoice.
func WrapCompleteError(err error, invoiceID, msg string) error {
	return &RemoteError{code: ErrCodeComplete, invoiceID: invoiceID, message: msg, wrapped: err}
}

// WrapPDFFetchError wraps an existing error as a PDF download failure on one invoice.
func WrapPDFFetchError(err error, invoiceID, msg string) error {
	return &RemoteError{code: ErrCodePDFFetch, invoiceID: invoiceID, message: msg, wrapped: err}
}
