package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/esign-networks/invoice-signer/app/internal/agent"
	"github.com/esign-networks/invoice-signer/app/internal/remote"
)

var (
	// ErrTermsNotAccepted means the user has not accepted the signing
	// terms. The caller should prompt, not report a failure.
	ErrTermsNotAccepted = errors.New("signing terms not accepted")

	// ErrRunInProgress means a signing run is already active; the new call
	// is rejected so two loops can never interleave agent calls.
	ErrRunInProgress = errors.New("a signing run is already in progress")

	// ErrEmptyBatch means the batch contains no invoices.
	ErrEmptyBatch = errors.New("the batch contains no invoices")

	// ErrNotReady means the agent/certificate readiness probe failed
	// before the loop started; no invoice was touched.
	ErrNotReady = errors.New("agent or certificate not ready")
)

// Orchestrator drives the sequential per-invoice signing protocol.
//
// The hardware key behind the agent is a single-use-at-a-time resource, so
// invoices are signed strictly one after another: no prepare or sign call is
// issued until the previous invoice's full three-step sequence has resolved.
type Orchestrator struct {
	remote RemoteAPI
	agent  SigningAgent
	logger *slog.Logger

	// now is the clock the readiness probe checks certificate validity
	// against; replaceable in tests
	now func() time.Time

	// running guards against overlapping signing runs
	running atomic.Bool
}

// NewOrchestrator creates the signing orchestrator.
func NewOrchestrator(remoteAPI RemoteAPI, signingAgent SigningAgent, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		remote: remoteAPI,
		agent:  signingAgent,
		logger: logger,
		now:    time.Now,
	}
}

// Running reports whether a signing run is currently in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// SignBatch signs every invoice of the batch with the chosen certificate,
// in batch order, and returns the aggregated outcome.
//
// Preconditions, checked in order:
//   - termsAccepted must be true (ErrTermsNotAccepted: prompt the user)
//   - no other run may be active (ErrRunInProgress: the call is a no-op)
//   - the batch must be non-empty (ErrEmptyBatch)
//   - the agent must be reachable and the certificate present and within
//     its validity window (ErrNotReady: the run aborts with zero invoices
//     processed)
//
// A single invoice's failure never aborts the batch: the invoice is marked
// FAILED, its label recorded, and the loop moves on. Only a protocol defect
// (an out-of-order state transition) escapes as an error after the guards
// have passed.
func (o *Orchestrator) SignBatch(ctx context.Context, b *SigningBatch, cert agent.Certificate, termsAccepted bool) (*BatchOutcome, error) {
	if !termsAccepted {
		return nil, ErrTermsNotAccepted
	}

	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	// the flag must clear on every exit path, including defects
	defer o.running.Store(false)

	if len(b.Invoices) == 0 {
		return nil, ErrEmptyBatch
	}

	if err := o.checkReadiness(ctx, cert); err != nil {
		return nil, err
	}

	for i, inv := range b.Invoices {
		if inv.State().IsTerminal() {
			// failed at load time; counted in the outcome, never signed
			continue
		}

		o.logger.Info("signing invoice",
			slog.String("invoice_id", inv.InvoiceID),
			slog.Int("position", i+1),
			slog.Int("total", len(b.Invoices)),
		)

		if err := o.signInvoice(ctx, b.DocumentID, inv, cert); err != nil {
			return nil, err
		}
	}

	outcome := newBatchOutcome(b)

	o.logger.Info("signing run finished",
		slog.String("document_id", b.DocumentID),
		slog.String("classification", string(outcome.Classify())),
		slog.Int("signed", outcome.SignedCount),
		slog.Int("failed", len(outcome.FailedLabels)),
	)

	return outcome, nil
}

// checkReadiness verifies the agent is reachable and the chosen certificate
// is still present and currently valid.
func (o *Orchestrator) checkReadiness(ctx context.Context, cert agent.Certificate) error {
	certs, err := o.agent.ListCertificates(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	for _, c := range certs {
		if c.Alias != cert.Alias || c.SerialNumber != cert.SerialNumber {
			continue
		}
		if !c.ValidAt(o.now()) {
			return fmt.Errorf("%w: certificate %s is outside its validity window", ErrNotReady, cert.Alias)
		}
		return nil
	}

	return fmt.Errorf("%w: certificate %s is no longer available", ErrNotReady, cert.Alias)
}

// signInvoice runs the three-step protocol for one invoice. Step failures
// are absorbed into the session (FAILED + reason); the returned error is
// non-nil only for defects, i.e. out-of-order state transitions.
func (o *Orchestrator) signInvoice(ctx context.Context, batchDocumentID string, inv *InvoiceSession, cert agent.Certificate) error {
	// step 1: prepare, always with the accept-time session token
	if err := inv.transitionTo(SessionStatePreparing); err != nil {
		return err
	}

	digest, err := o.remote.PrepareInvoice(ctx, batchDocumentID, inv.InvoiceID, inv.SigningSessionID(), cert.Alias, cert.SerialNumber)
	if err != nil {
		o.failInvoice(inv, "prepare", err)
		return nil
	}

	inv.Digest = digest
	if err := inv.transitionTo(SessionStatePrepared); err != nil {
		return err
	}

	// step 2: agent sign
	if err := inv.transitionTo(SessionStateAgentSigning); err != nil {
		return err
	}

	signed, err := o.agent.SignDigest(ctx, digest, cert.Algorithm, cert.Alias)
	if err != nil {
		o.failInvoice(inv, "agent-sign", err)
		return nil
	}

	inv.SignatureValue = signed.SignatureValue
	inv.CertificateBytes = signed.CertificateBytes
	if err := inv.transitionTo(SessionStateAgentSigned); err != nil {
		return err
	}

	// step 3: complete, again with the accept-time session token, never a
	// value surfaced by the prepare step
	if err := inv.transitionTo(SessionStateCompleting); err != nil {
		return err
	}

	err = o.remote.CompleteInvoice(ctx, batchDocumentID, inv.InvoiceID, inv.SigningSessionID(), inv.SignatureValue, inv.CertificateBytes, cert.Algorithm)
	if err != nil {
		o.failInvoice(inv, "complete", err)
		return nil
	}

	return inv.transitionTo(SessionStateSigned)
}

// failInvoice records a step failure against the invoice and logs it; the
// loop summarizes failures once at the end, so nothing is surfaced mid-run.
func (o *Orchestrator) failInvoice(inv *InvoiceSession, step string, err error) {
	inv.fail(failureReason(err))

	o.logger.Warn("invoice signing step failed",
		slog.String("invoice_id", inv.InvoiceID),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// failureReason maps a step error to the reason recorded on the session.
// Error-kind tags from the clients are used here so the orchestrator never
// inspects transport-level details itself.
func failureReason(err error) string {
	var agentErr *agent.AgentError
	if errors.As(err, &agentErr) && agentErr.Code() == agent.ErrCodeNotRunning {
		return "agent unreachable"
	}

	var remoteErr *remote.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Error()
	}

	return err.Error()
}
