// Package batch implements the core of the signing flow: loading a document
// link into a batch of invoice sessions, driving each invoice through the
// prepare / agent-sign / complete protocol, and summarizing the outcome.
package batch

import (
	"context"

	"github.com/esign-networks/invoice-signer/app/internal/agent"
	"github.com/esign-networks/invoice-signer/app/internal/remote"
)

// RemoteAPI is the subset of the remote signing server client used by the
// loader and the orchestrator. *remote.Client satisfies it.
type RemoteAPI interface {
	AcceptBatch(ctx context.Context, documentID string) ([]remote.InvoiceSeed, error)
	PrepareInvoice(ctx context.Context, batchDocumentID, invoiceID, signingSessionID, alias, serialNumber string) (string, error)
	CompleteInvoice(ctx context.Context, batchDocumentID, invoiceID, signingSessionID, signatureValue, certificate, algorithm string) error
	FetchInvoicePDF(ctx context.Context, batchDocumentID, invoiceID string, maxBytes int) ([]byte, error)
}

// SigningAgent is the subset of the local agent client used by the
// orchestrator. *agent.Client satisfies it.
type SigningAgent interface {
	ListCertificates(ctx context.Context) ([]agent.Certificate, error)
	SignDigest(ctx context.Context, digest, algorithm, alias string) (*agent.SignResult, error)
}
