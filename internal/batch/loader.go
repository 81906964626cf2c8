package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/esign-networks/invoice-signer/app/internal/render"
)

// Loader resolves a document identifier into a populated SigningBatch:
// one accept call, then a concurrent PDF fetch+render per invoice.
type Loader struct {
	remote   RemoteAPI
	renderer render.PageRenderer
	logger   *slog.Logger

	// maxPDFBytes bounds each invoice PDF download
	maxPDFBytes int

	// maxConcurrent bounds the number of parallel fetch+render workers
	maxConcurrent int
}

// NewLoader creates a batch loader. maxConcurrent values below 1 are raised
// to 1.
func NewLoader(remoteAPI RemoteAPI, renderer render.PageRenderer, logger *slog.Logger, maxPDFBytes, maxConcurrent int) *Loader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Loader{
		remote:        remoteAPI,
		renderer:      renderer,
		logger:        logger,
		maxPDFBytes:   maxPDFBytes,
		maxConcurrent: maxConcurrent,
	}
}

// Load accepts the document link and renders every invoice's pages.
//
// An accept failure aborts loading entirely: no partial batch is returned.
// A fetch or render failure is scoped to its invoice: that session is marked
// FAILED with zero pages while sibling invoices keep loading. Renders run
// concurrently with no ordering guarantee between invoices; page order
// within one invoice always matches the source document.
func (l *Loader) Load(ctx context.Context, documentID string) (*SigningBatch, error) {
	seeds, err := l.remote.AcceptBatch(ctx, documentID)
	if err != nil {
		return nil, err
	}

	signingBatch := NewSigningBatch(documentID, seeds)

	l.logger.Info("batch accepted",
		slog.String("document_id", documentID),
		slog.Int("invoice_count", len(signingBatch.Invoices)),
	)

	var wg sync.WaitGroup
	sem := make(chan struct{}, l.maxConcurrent)

	for _, inv := range signingBatch.Invoices {
		wg.Add(1)
		go func(inv *InvoiceSession) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			l.loadInvoice(ctx, documentID, inv)
		}(inv)
	}

	wg.Wait()

	return signingBatch, nil
}

// loadInvoice fetches and renders one invoice's PDF. Failures mark only this
// invoice FAILED; the loader owns Pages and the failure mark, nothing else.
func (l *Loader) loadInvoice(ctx context.Context, documentID string, inv *InvoiceSession) {
	pdf, err := l.remote.FetchInvoicePDF(ctx, documentID, inv.InvoiceID, l.maxPDFBytes)
	if err != nil {
		l.logger.Warn("invoice pdf download failed",
			slog.String("invoice_id", inv.InvoiceID),
			slog.String("error", err.Error()),
		)
		inv.fail("render-error")
		return
	}

	pages, err := l.renderer.RenderPages(ctx, pdf)
	if err != nil {
		l.logger.Warn("invoice render failed",
			slog.String("invoice_id", inv.InvoiceID),
			slog.String("error", err.Error()),
		)
		inv.fail("render-error")
		return
	}

	inv.Pages = pages

	l.logger.Debug("invoice rendered",
		slog.String("invoice_id", inv.InvoiceID),
		slog.Int("page_count", len(pages)),
	)
}
