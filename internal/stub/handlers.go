package stub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/esign-networks/invoice-signer/app/internal/logger"
)

// wire types mirror the signing server and agent APIs the client consumes

type acceptedSession struct {
	DocumentID       string `json:"documentIdentifier"`
	SigningSessionID string `json:"signingSessionId"`
	InvoiceID        string `json:"invoiceId"`
}

type acceptResponse struct {
	SigningSessions []acceptedSession `json:"signingSessions"`
}

type prepareRequest struct {
	Alias            string `json:"alias"`
	SigningSessionID string `json:"signingSessionId"`
	SerialNumber     string `json:"serialNumber"`
}

type prepareResponse struct {
	Digest           string `json:"digest"`
	SigningSessionID string `json:"signingSessionId"`
}

type completeRequest struct {
	SigningSessionID string `json:"signingSessionId"`
	SignatureValue   string `json:"signatureValue"`
	Certificate      string `json:"certificate"`
	Algorithm        string `json:"algorithm"`
}

type completeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type stubCertificate struct {
	Alias        string    `json:"alias"`
	SerialNumber string    `json:"serialNumber"`
	Algorithm    string    `json:"algorithm"`
	Issuer       string    `json:"issuer"`
	Subject      string    `json:"subject"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
}

type signRequest struct {
	Digest    string `json:"digest"`
	Algorithm string `json:"algorithm"`
	Alias     string `json:"alias"`
}

type signResponse struct {
	SignatureValue string `json:"signatureValue"`
	Certificate    string `json:"certificate"`
}

// a minimal single-page PDF, good enough for render testing
const stubPDF = `%PDF-1.4
1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj
2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj
3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 595 842]>>endobj
xref
0 4
0000000000 65535 f
0000000009 00000 n
0000000052 00000 n
0000000101 00000 n
trailer<</Size 4/Root 1 0 R>>
startxref
164
%%EOF
`

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HandleAccept godoc
//
//	@Summary		Accept a signing batch
//	@Description	Converts a document link into one signing session per invoice.
//	@Description	The number of invoices issued is controlled by STUB_INVOICE_COUNT.
//	@Tags			Signing
//	@Produce		json
//	@Param			documentIdentifier	path		string	true	"Batch document identifier"
//	@Success		200					{object}	acceptResponse
//	@Router			/api/sign/{documentIdentifier}/accept [post]
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentIdentifier")

	sessions := s.store.accept(documentID, s.config.StubInvoiceCount)

	logger.ContextRequestLogger(r.Context()).Info("batch accepted",
		slog.String("document_id", documentID),
		slog.Int("invoice_count", len(sessions)),
	)

	respondJSON(w, http.StatusOK, acceptResponse{SigningSessions: sessions})
}

// HandlePrepare godoc
//
//	@Summary		Prepare an invoice for signing
//	@Description	Returns the digest to be signed. The response's signingSessionId is a
//	@Description	decoy: sending it back on complete fails the session, which is exactly
//	@Description	how the real server behaves when the token is threaded wrongly.
//	@Tags			Signing
//	@Accept			json
//	@Produce		json
//	@Param			documentIdentifier	path		string			true	"Batch document identifier"
//	@Param			request				body		prepareRequest	true	"Prepare request"
//	@Success		200					{object}	prepareResponse
//	@Failure		422					{object}	errorResponse
//	@Router			/api/sign/{documentIdentifier}/prepare [post]
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed prepare request"})
		return
	}
	defer r.Body.Close()

	digest, decoy, err := s.store.prepare(req.SigningSessionID)
	if err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, prepareResponse{
		Digest:           digest,
		SigningSessionID: decoy,
	})
}

// HandleComplete godoc
//
//	@Summary		Complete an invoice signature
//	@Description	Validates the signature against the prepared digest and finalizes the session.
//	@Tags			Signing
//	@Accept			json
//	@Produce		json
//	@Param			documentIdentifier	path		string			true	"Batch document identifier"
//	@Param			request				body		completeRequest	true	"Complete request"
//	@Success		200					{object}	completeResponse
//	@Router			/api/sign/{documentIdentifier}/complete [post]
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed complete request"})
		return
	}
	defer r.Body.Close()

	if err := s.store.complete(req.SigningSessionID, req.SignatureValue); err != nil {
		respondJSON(w, http.StatusOK, completeResponse{Success: false, Message: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, completeResponse{Success: true})
}

// HandleInvoicePDF godoc
//
//	@Summary	Download an invoice PDF
//	@Tags		Signing
//	@Produce	application/pdf
//	@Param		documentIdentifier	path	string	true	"Batch document identifier"
//	@Param		invoiceId			path	string	true	"Invoice identifier"
//	@Success	200					{file}	binary
//	@Router		/sign/{documentIdentifier}/invoices/{invoiceId}/pdf [get]
func (s *Server) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(stubPDF))
}

// HandleCertificates godoc
//
//	@Summary		List signing certificates
//	@Description	Returns the stub's single test certificate, as the local agent would.
//	@Tags			Agent
//	@Produce		json
//	@Success		200	{array}	stubCertificate
//	@Router			/api/certificates [get]
func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	respondJSON(w, http.StatusOK, []stubCertificate{
		{
			Alias:        "stub-card",
			SerialNumber: "00DEADBEEF",
			Algorithm:    "SHA256withRSA",
			Issuer:       "CN=Stub CA",
			Subject:      "CN=Stub Signer",
			NotBefore:    now.Add(-24 * time.Hour),
			NotAfter:     now.Add(24 * time.Hour),
		},
	})
}

// HandleSign godoc
//
//	@Summary		Sign a digest
//	@Description	Produces the stub's deterministic signature for a digest, as the local
//	@Description	agent's hardware key would.
//	@Tags			Agent
//	@Accept			json
//	@Produce		json
//	@Param			request	body		signRequest	true	"Sign request"
//	@Success		200		{object}	signResponse
//	@Router			/api/certificates/signe [post]
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed sign request"})
		return
	}
	defer r.Body.Close()

	if req.Digest == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "digest is required"})
		return
	}

	respondJSON(w, http.StatusOK, signResponse{
		SignatureValue: stubSignature(req.Digest),
		Certificate:    "c3R1Yi1jZXJ0aWZpY2F0ZQ==",
	})
}
