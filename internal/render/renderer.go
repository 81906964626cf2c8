// Package render turns a PDF byte stream into a sequence of page bitmaps.
//
// The signing flow only needs rendering so the user can review invoices
// before signing; the PDF library is consumed as a black box behind the
// PageRenderer interface so tests (and the loader) never depend on it.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// Page is one rendered PDF page. Number is 1-based and pages are always
// returned in source order.
type Page struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// PageRenderer renders a PDF document into page bitmaps.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdf []byte) ([]Page, error)
}

// FitzRenderer renders PDFs with the MuPDF fitz bindings.
type FitzRenderer struct{}

// NewFitzRenderer returns the production PageRenderer.
func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

// RenderPages renders every page of the document to PNG. The document handle
// is closed on every exit path.
func (r *FitzRenderer) RenderPages(ctx context.Context, pdf []byte) ([]Page, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf contains no pages")
	}

	pages := make([]Page, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", n+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", n+1, err)
		}

		bounds := img.Bounds()
		pages = append(pages, Page{
			Number: n + 1,
			PNG:    buf.Bytes(),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	return pages, nil
}
