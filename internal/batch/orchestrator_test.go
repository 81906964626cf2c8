package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/esign-networks/invoice-signer/app/internal/agent"
	"github.com/esign-networks/invoice-signer/app/internal/remote"
	"github.com/esign-networks/invoice-signer/app/internal/render"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRemote is a programmable RemoteAPI that records the order of calls
// and the session tokens it was given.
type fakeRemote struct {
	mu sync.Mutex

	seeds     []remote.InvoiceSeed
	acceptErr error

	// calls records "prepare:<id>" / "complete:<id>" / "pdf:<id>" in order
	calls []string

	// tokens received per invoice
	prepareTokens  map[string]string
	completeTokens map[string]string

	prepareErr  map[string]error
	completeErr map[string]error

	pdfBytes map[string][]byte
	pdfErr   map[string]error

	// when non-nil, PrepareInvoice signals prepareStarted and then blocks
	// until prepareRelease is closed
	prepareStarted chan struct{}
	prepareRelease chan struct{}
}

func newFakeRemote(seeds ...remote.InvoiceSeed) *fakeRemote {
	return &fakeRemote{
		seeds:          seeds,
		prepareTokens:  map[string]string{},
		completeTokens: map[string]string{},
		prepareErr:     map[string]error{},
		completeErr:    map[string]error{},
		pdfBytes:       map[string][]byte{},
		pdfErr:         map[string]error{},
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) AcceptBatch(ctx context.Context, documentID string) ([]remote.InvoiceSeed, error) {
	f.record("accept:" + documentID)
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return f.seeds, nil
}

func (f *fakeRemote) PrepareInvoice(ctx context.Context, batchDocumentID, invoiceID, signingSessionID, alias, serialNumber string) (string, error) {
	f.record("prepare:" + invoiceID)
	f.mu.Lock()
	f.prepareTokens[invoiceID] = signingSessionID
	f.mu.Unlock()

	if f.prepareStarted != nil {
		f.prepareStarted <- struct{}{}
		<-f.prepareRelease
	}

	if err := f.prepareErr[invoiceID]; err != nil {
		return "", err
	}
	return "digest-" + invoiceID, nil
}

func (f *fakeRemote) CompleteInvoice(ctx context.Context, batchDocumentID, invoiceID, signingSessionID, signatureValue, certificate, algorithm string) error {
	f.record("complete:" + invoiceID)
	f.mu.Lock()
	f.completeTokens[invoiceID] = signingSessionID
	f.mu.Unlock()
	return f.completeErr[invoiceID]
}

func (f *fakeRemote) FetchInvoicePDF(ctx context.Context, batchDocumentID, invoiceID string, maxBytes int) ([]byte, error) {
	f.record("pdf:" + invoiceID)
	if err := f.pdfErr[invoiceID]; err != nil {
		return nil, err
	}
	if pdf, ok := f.pdfBytes[invoiceID]; ok {
		return pdf, nil
	}
	return []byte("%PDF " + invoiceID), nil
}

// fakeAgent is a programmable SigningAgent.
type fakeAgent struct {
	mu sync.Mutex

	certs   []agent.Certificate
	listErr error

	signCalls []string
	signErr   map[string]error
}

func newFakeAgent(certs ...agent.Certificate) *fakeAgent {
	return &fakeAgent{certs: certs, signErr: map[string]error{}}
}

func (f *fakeAgent) ListCertificates(ctx context.Context) ([]agent.Certificate, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.certs, nil
}

func (f *fakeAgent) SignDigest(ctx context.Context, digest, algorithm, alias string) (*agent.SignResult, error) {
	f.mu.Lock()
	f.signCalls = append(f.signCalls, digest)
	f.mu.Unlock()

	if err := f.signErr[digest]; err != nil {
		return nil, err
	}
	return &agent.SignResult{
		SignatureValue:   "sig-of-" + digest,
		CertificateBytes: "cert-bytes",
	}, nil
}

func seed(n int) remote.InvoiceSeed {
	return remote.InvoiceSeed{
		DocumentID:       fmt.Sprintf("doc-%d", n),
		SigningSessionID: fmt.Sprintf("accept-token-%d", n),
		InvoiceID:        fmt.Sprintf("INV-%d", n),
	}
}

func testCert() agent.Certificate {
	return agent.Certificate{
		Alias:        "card-1",
		SerialNumber: "0123",
		Algorithm:    "SHA256withRSA",
	}
}

func loadedBatch(seeds ...remote.InvoiceSeed) *SigningBatch {
	return NewSigningBatch("batch-doc", seeds)
}

func TestSignBatch_AllSigned(t *testing.T) {
	remoteAPI := newFakeRemote()
	agentAPI := newFakeAgent(testCert())
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

	b := loadedBatch(seed(1), seed(2))

	outcome, err := orch.SignBatch(context.Background(), b, testCert(), true)
	if err != nil {
		t.Fatalf("SignBatch() error = %v", err)
	}

	if outcome.Classify() != AllSigned {
		t.Errorf("Classify() = %v, want %v", outcome.Classify(), AllSigned)
	}
	if outcome.SignedCount != 2 {
		t.Errorf("SignedCount = %d, want 2", outcome.SignedCount)
	}
	for _, inv := range b.Invoices {
		if inv.State() != SessionStateSigned {
			t.Errorf("invoice %s state = %v, want SIGNED", inv.InvoiceID, inv.State())
		}
	}
}

func TestSignBatch_VisitsInvoicesInOrder(t *testing.T) {
	remoteAPI := newFakeRemote()
	agentAPI := newFakeAgent(testCert())
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

	b := loadedBatch(seed(1), seed(2), seed(3))

	if _, err := orch.SignBatch(context.Background(), b, testCert(), true); err != nil {
		t.Fatalf("SignBatch() error = %v", err)
	}

	want := []string{
		"prepare:INV-1", "complete:INV-1",
		"prepare:INV-2", "complete:INV-2",
		"prepare:INV-3", "complete:INV-3",
	}
	if len(remoteAPI.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", remoteAPI.calls, want)
	}
	for i, call := range want {
		if remoteAPI.calls[i] != call {
			t.Errorf("call %d = %q, want %q", i, remoteAPI.calls[i], call)
		}
	}
}

func TestSignBatch_TokenSourcing(t *testing.T) {
	// the fake's PrepareInvoice returns digests, and the real client would
	// also see a token-shaped field in the prepare response; whatever the
	// prepare step surfaces, complete must receive the accept-time token.
	remoteAPI := newFakeRemote()
	agentAPI := newFakeAgent(testCert())
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

	b := loadedBatch(seed(1), seed(2))

	if _, err := orch.SignBatch(context.Background(), b, testCert(), true); err != nil {
		t.Fatalf("SignBatch() error = %v", err)
	}

	for i, inv := range b.Invoices {
		wantToken := fmt.Sprintf("accept-token-%d", i+1)
		if got := remoteAPI.prepareTokens[inv.InvoiceID]; got != wantToken {
			t.Errorf("prepare token for %s = %q, want %q", inv.InvoiceID, got, wantToken)
		}
		if got := remoteAPI.completeTokens[inv.InvoiceID]; got != wantToken {
			t.Errorf("complete token for %s = %q, want %q", inv.InvoiceID, got, wantToken)
		}
	}
}

func TestSignBatch_PartialFailureIsolation(t *testing.T) {
	tests := []struct {
		name      string
		breakStep func(r *fakeRemote, a *fakeAgent)
	}{
		{
			name: "prepare fails",
			breakStep: func(r *fakeRemote, a *fakeAgent) {
				r.prepareErr["INV-2"] = remote.NewPrepareError("INV-2", "session not signable")
			},
		},
		{
			name: "agent sign fails",
			breakStep: func(r *fakeRemote, a *fakeAgent) {
				a.signErr["digest-INV-2"] = agent.NewSignError("card removed")
			},
		},
		{
			name: "complete fails",
			breakStep: func(r *fakeRemote, a *fakeAgent) {
				r.completeErr["INV-2"] = remote.NewCompleteError("INV-2", "signature rejected")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remoteAPI := newFakeRemote()
			agentAPI := newFakeAgent(testCert())
			tt.breakStep(remoteAPI, agentAPI)
			orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

			b := loadedBatch(seed(1), seed(2), seed(3))

			outcome, err := orch.SignBatch(context.Background(), b, testCert(), true)
			if err != nil {
				t.Fatalf("SignBatch() error = %v", err)
			}

			if outcome.SignedCount != 2 {
				t.Errorf("SignedCount = %d, want 2", outcome.SignedCount)
			}
			if len(outcome.FailedLabels) != 1 || outcome.FailedLabels[0] != "INV-2" {
				t.Errorf("FailedLabels = %v, want [INV-2]", outcome.FailedLabels)
			}
			if outcome.Classify() != Partial {
				t.Errorf("Classify() = %v, want %v", outcome.Classify(), Partial)
			}

			if b.Invoices[0].State() != SessionStateSigned || b.Invoices[2].State() != SessionStateSigned {
				t.Errorf("sibling invoices not signed: %v / %v", b.Invoices[0].State(), b.Invoices[2].State())
			}
			if b.Invoices[1].State() != SessionStateFailed {
				t.Errorf("invoice 2 state = %v, want FAILED", b.Invoices[1].State())
			}
		})
	}
}

func TestSignBatch_AgentDownMidBatch(t *testing.T) {
	remoteAPI := newFakeRemote()
	agentAPI := newFakeAgent(testCert())
	agentAPI.signErr["digest-INV-2"] = agent.WrapNotRunningError(errors.New("connection refused"), "the signing agent is unreachable")
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

	b := loadedBatch(seed(1), seed(2), seed(3))

	outcome, err := orch.SignBatch(context.Background(), b, testCert(), true)
	if err != nil {
		t.Fatalf("SignBatch() error = %v", err)
	}

	if b.Invoices[1].State() != SessionStateFailed {
		t.Fatalf("invoice 2 state = %v, want FAILED", b.Invoices[1].State())
	}
	if b.Invoices[1].FailureReason() != "agent unreachable" {
		t.Errorf("FailureReason = %q, want %q", b.Invoices[1].FailureReason(), "agent unreachable")
	}

	// the loop still attempted invoice 3
	if b.Invoices[2].State() != SessionStateSigned {
		t.Errorf("invoice 3 state = %v, want SIGNED", b.Invoices[2].State())
	}
	if outcome.SignedCount != 2 {
		t.Errorf("SignedCount = %d, want 2", outcome.SignedCount)
	}
}

func TestSignBatch_PreconditionGating(t *testing.T) {
	tests := []struct {
		name  string
		setup func(a *fakeAgent)
	}{
		{
			name: "agent not running",
			setup: func(a *fakeAgent) {
				a.listErr = agent.NewNotRunningError("the signing agent is not running")
			},
		},
		{
			name: "certificate no longer available",
			setup: func(a *fakeAgent) {
				a.certs = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remoteAPI := newFakeRemote()
			agentAPI := newFakeAgent(testCert())
			tt.setup(agentAPI)
			orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

			b := loadedBatch(seed(1), seed(2))

			_, err := orch.SignBatch(context.Background(), b, testCert(), true)
			if !errors.Is(err, ErrNotReady) {
				t.Fatalf("error = %v, want ErrNotReady", err)
			}

			// zero protocol calls were made for any invoice
			if len(remoteAPI.calls) != 0 {
				t.Errorf("remote calls = %v, want none", remoteAPI.calls)
			}
			if len(agentAPI.signCalls) != 0 {
				t.Errorf("sign calls = %v, want none", agentAPI.signCalls)
			}

			// states untouched
			for _, inv := range b.Invoices {
				if inv.State() != SessionStateLoaded {
					t.Errorf("invoice %s state = %v, want LOADED", inv.InvoiceID, inv.State())
				}
			}
		})
	}
}

func TestSignBatch_CertificateOutsideValidityWindow(t *testing.T) {
	cert := testCert()
	cert.NotBefore = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert.NotAfter = time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	remoteAPI := newFakeRemote()
	agentAPI := newFakeAgent(cert)
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())
	orch.now = func() time.Time {
		return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	}

	b := loadedBatch(seed(1), seed(2))

	_, err := orch.SignBatch(context.Background(), b, cert, true)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("error = %v, want ErrNotReady", err)
	}

	if len(remoteAPI.calls) != 0 {
		t.Errorf("remote calls = %v, want none", remoteAPI.calls)
	}
	for _, inv := range b.Invoices {
		if inv.State() != SessionStateLoaded {
			t.Errorf("invoice %s state = %v, want LOADED", inv.InvoiceID, inv.State())
		}
	}

	// the same certificate inside its window passes the probe
	orch2 := NewOrchestrator(remoteAPI, agentAPI, testLogger())
	orch2.now = func() time.Time {
		return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	if _, err := orch2.SignBatch(context.Background(), loadedBatch(seed(1)), cert, true); err != nil {
		t.Fatalf("SignBatch() inside validity window error = %v", err)
	}
}

func TestSignBatch_TermsNotAccepted(t *testing.T) {
	remoteAPI := newFakeRemote()
	orch := NewOrchestrator(remoteAPI, newFakeAgent(testCert()), testLogger())

	_, err := orch.SignBatch(context.Background(), loadedBatch(seed(1)), testCert(), false)
	if !errors.Is(err, ErrTermsNotAccepted) {
		t.Fatalf("error = %v, want ErrTermsNotAccepted", err)
	}
	if len(remoteAPI.calls) != 0 {
		t.Errorf("remote calls = %v, want none", remoteAPI.calls)
	}
}

func TestSignBatch_EmptyBatch(t *testing.T) {
	orch := NewOrchestrator(newFakeRemote(), newFakeAgent(testCert()), testLogger())

	_, err := orch.SignBatch(context.Background(), loadedBatch(), testCert(), true)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("error = %v, want ErrEmptyBatch", err)
	}
}

func TestSignBatch_Reentrancy(t *testing.T) {
	remoteAPI := newFakeRemote()
	remoteAPI.prepareStarted = make(chan struct{})
	remoteAPI.prepareRelease = make(chan struct{})
	agentAPI := newFakeAgent(testCert())
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

	b := loadedBatch(seed(1))

	done := make(chan error, 1)
	go func() {
		_, err := orch.SignBatch(context.Background(), b, testCert(), true)
		done <- err
	}()

	// wait until the first run is inside its prepare call
	<-remoteAPI.prepareStarted

	if !orch.Running() {
		t.Error("Running() = false while a run is active")
	}

	_, err := orch.SignBatch(context.Background(), loadedBatch(seed(2)), testCert(), true)
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second call error = %v, want ErrRunInProgress", err)
	}

	close(remoteAPI.prepareRelease)
	if err := <-done; err != nil {
		t.Fatalf("first run error = %v", err)
	}

	// the rejected call duplicated nothing: only invoice 1's calls exist
	want := []string{"prepare:INV-1", "complete:INV-1"}
	if len(remoteAPI.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", remoteAPI.calls, want)
	}

	if orch.Running() {
		t.Error("Running() = true after the run finished")
	}
}

func TestSignBatch_SkipsRenderFailedInvoices(t *testing.T) {
	remoteAPI := newFakeRemote()
	agentAPI := newFakeAgent(testCert())
	orch := NewOrchestrator(remoteAPI, agentAPI, testLogger())

	b := loadedBatch(seed(1), seed(2))
	b.Invoices[0].fail("render-error")

	outcome, err := orch.SignBatch(context.Background(), b, testCert(), true)
	if err != nil {
		t.Fatalf("SignBatch() error = %v", err)
	}

	if outcome.SignedCount != 1 {
		t.Errorf("SignedCount = %d, want 1", outcome.SignedCount)
	}
	if len(outcome.FailedLabels) != 1 || outcome.FailedLabels[0] != "INV-1" {
		t.Errorf("FailedLabels = %v, want [INV-1]", outcome.FailedLabels)
	}

	// no protocol calls for the render-failed invoice
	for _, call := range remoteAPI.calls {
		if call == "prepare:INV-1" || call == "complete:INV-1" {
			t.Errorf("unexpected call %q for render-failed invoice", call)
		}
	}
}

func TestBatchOutcome_Classify(t *testing.T) {
	tests := []struct {
		name    string
		outcome BatchOutcome
		want    Classification
	}{
		{"all signed", BatchOutcome{Total: 2, SignedCount: 2}, AllSigned},
		{"partial", BatchOutcome{Total: 3, SignedCount: 2, FailedLabels: []string{"INV-2"}}, Partial},
		{"none signed", BatchOutcome{Total: 2, SignedCount: 0, FailedLabels: []string{"INV-1", "INV-2"}}, NoneSigned},
		{"empty failure list wins over zero signed", BatchOutcome{Total: 0, SignedCount: 0}, AllSigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Classify(); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeRenderer renders one page per occurrence of "page" in the input, or
// fails when told to.
type fakeRenderer struct {
	failFor map[string]bool
}

func (f *fakeRenderer) RenderPages(ctx context.Context, pdf []byte) ([]render.Page, error) {
	if f.failFor[string(pdf)] {
		return nil, errors.New("corrupt pdf")
	}
	return []render.Page{
		{Number: 1, PNG: []byte("png-1")},
		{Number: 2, PNG: []byte("png-2")},
	}, nil
}
