package batch

import (
	"fmt"

	"github.com/esign-networks/invoice-signer/app/internal/remote"
	"github.com/esign-networks/invoice-signer/app/internal/render"
)

// InvoiceSession is one invoice's identity and protocol state within a batch.
//
// The signing session token is captured once, from the accept response, and
// is deliberately unexported: both the prepare and the complete call read it
// through SigningSessionID() and nothing can overwrite it afterwards. The
// prepare response carries a similarly named wire field, which the remote
// client already discards (see remote.PrepareInvoice).
type InvoiceSession struct {
	// InvoiceID is the server-assigned invoice label, also used in
	// failure summaries.
	InvoiceID string

	// DocumentID is the invoice-level document identifier from the accept
	// response (distinct from the batch's document identifier).
	DocumentID string

	signingSessionID string

	// protocol fields accumulated during a signing run; owned exclusively
	// by the orchestrator
	Digest           string
	SignatureValue   string
	CertificateBytes string

	// Pages holds the rendered invoice pages; owned exclusively by the
	// loader and never touched during signing.
	Pages []render.Page

	state         SessionState
	failureReason string
}

// NewInvoiceSession builds a session in state LOADED from an accept seed.
func NewInvoiceSession(seed remote.InvoiceSeed) *InvoiceSession {
	return &InvoiceSession{
		InvoiceID:        seed.InvoiceID,
		DocumentID:       seed.DocumentID,
		signingSessionID: seed.SigningSessionID,
		state:            SessionStateLoaded,
	}
}

// SigningSessionID returns the accept-time session token. This is the only
// token ever sent to prepare and complete.
func (s *InvoiceSession) SigningSessionID() string {
	return s.signingSessionID
}

// State returns the session's current protocol state.
func (s *InvoiceSession) State() SessionState {
	return s.state
}

// FailureReason returns the recorded reason when the session is FAILED.
func (s *InvoiceSession) FailureReason() string {
	return s.failureReason
}

// transitionTo advances the session state, rejecting out-of-order steps.
func (s *InvoiceSession) transitionTo(next SessionState) error {
	if !isValidSessionStateTransition(s.state, next) {
		return fmt.Errorf("invalid session state transition for invoice %s: %s -> %s", s.InvoiceID, s.state, next)
	}
	s.state = next
	return nil
}

// fail moves the session to FAILED with a reason. Calling fail on a session
// that is already terminal is a no-op; the first recorded outcome wins.
func (s *InvoiceSession) fail(reason string) {
	if s.state.IsTerminal() {
		return
	}
	s.state = SessionStateFailed
	s.failureReason = reason
}

// SigningBatch is the set of invoices accepted under one document link.
// Invoice order is fixed by the accept response and drives both display
// order and signing order.
type SigningBatch struct {
	DocumentID string
	Invoices   []*InvoiceSession
}

// NewSigningBatch builds a batch from the accept response seeds, preserving
// server order.
func NewSigningBatch(documentID string, seeds []remote.InvoiceSeed) *SigningBatch {
	invoices := make([]*InvoiceSession, 0, len(seeds))
	for _, seed := range seeds {
		invoices = append(invoices, NewInvoiceSession(seed))
	}
	return &SigningBatch{
		DocumentID: documentID,
		Invoices:   invoices,
	}
}
