// Package remote implements the client for the remote signing server API
// (accept, prepare, complete, and invoice PDF download).
//
// The client classifies transport and HTTP failures into the error codes in
// errors.go so that callers never have to inspect status codes or response
// bodies themselves.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Client is an HTTP client for the remote signing server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (used by tests and to set
// call timeouts).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit enables client-side rate limiting of API calls.
// rps <= 0 disables limiting.
func WithRateLimit(rps int32, burst int32) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(burst))
		}
	}
}

// NewClient creates a client for the signing server at baseURL. The bearer
// token is sent on every request.
func NewClient(baseURL string, token string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AcceptBatch converts a document link into one signing session per invoice.
//
// Failures are classified for the caller:
//   - session_expired: the link's signing session has expired (HTTP 410)
//   - invalid_link: the server does not know the document, or returned an
//     empty session list
//   - server: anything else (the server-supplied message is preserved)
func (c *Client) AcceptBatch(ctx context.Context, documentID string) ([]InvoiceSeed, error) {
	url := fmt.Sprintf("%s/api/sign/%s/accept", c.baseURL, documentID)

	resp, err := c.do(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, WrapServerError(err, "accept call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readServerMessage(resp.Body)
		switch resp.StatusCode {
		case http.StatusGone:
			if msg == "" {
				msg = "the signing session has expired"
			}
			return nil, NewSessionExpiredError(msg)
		case http.StatusNotFound:
			if msg == "" {
				msg = "unknown document link"
			}
			return nil, NewInvalidLinkError(msg)
		default:
			if msg == "" {
				msg = fmt.Sprintf("accept failed with status %d", resp.StatusCode)
			}
			return nil, NewServerError(msg)
		}
	}

	var accepted acceptResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return nil, WrapServerError(err, "failed to decode accept response")
	}

	if len(accepted.SigningSessions) == 0 {
		return nil, NewInvalidLinkError("the document link contains no invoices")
	}

	c.logger.Debug("batch accepted",
		slog.String("document_id", documentID),
		slog.Int("invoice_count", len(accepted.SigningSessions)),
	)

	return accepted.SigningSessions, nil
}

// PrepareInvoice asks the server for the digest to be signed for one invoice.
//
// signingSessionID must be the accept-time session token for the invoice.
// invoiceID is used only to attribute errors to the invoice.
func (c *Client) PrepareInvoice(ctx context.Context, batchDocumentID, invoiceID, signingSessionID, alias, serialNumber string) (string, error) {
	url := fmt.Sprintf("%s/api/sign/%s/prepare", c.baseURL, batchDocumentID)

	body := prepareRequest{
		Alias:            alias,
		SigningSessionID: signingSessionID,
		SerialNumber:     serialNumber,
	}

	resp, err := c.doJSON(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", WrapPrepareError(err, invoiceID, "prepare call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readServerMessage(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("prepare failed with status %d", resp.StatusCode)
		}
		return "", NewPrepareError(invoiceID, msg)
	}

	var prepared prepareResponse
	if err := json.NewDecoder(resp.Body).Decode(&prepared); err != nil {
		return "", WrapPrepareError(err, invoiceID, "failed to decode prepare response")
	}

	// prepared.PreparedToken is intentionally discarded here: the session
	// token captured at accept time stays the single source of truth.
	if prepared.Digest == "" {
		msg := prepared.Message
		if msg == "" {
			msg = "prepare response did not contain a digest"
		}
		return "", NewPrepareError(invoiceID, msg)
	}

	return prepared.Digest, nil
}

// CompleteInvoice finalizes the signature for one invoice.
//
// signingSessionID must be the accept-time session token for the invoice,
// never a value taken from the prepare response.
func (c *Client) CompleteInvoice(ctx context.Context, batchDocumentID, invoiceID, signingSessionID, signatureValue, certificate, algorithm string) error {
	url := fmt.Sprintf("%s/api/sign/%s/complete", c.baseURL, batchDocumentID)

	body := completeRequest{
		SigningSessionID: signingSessionID,
		SignatureValue:   signatureValue,
		Certificate:      certificate,
		Algorithm:        algorithm,
	}

	resp, err := c.doJSON(ctx, http.MethodPost, url, body)
	if err != nil {
		return WrapCompleteError(err, invoiceID, "complete call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readServerMessage(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("complete failed with status %d", resp.StatusCode)
		}
		return NewCompleteError(invoiceID, msg)
	}

	var completed completeResponse
	if err := json.NewDecoder(resp.Body).Decode(&completed); err != nil {
		return WrapCompleteError(err, invoiceID, "failed to decode complete response")
	}

	if !completed.Success {
		msg := completed.Message
		if msg == "" {
			msg = "the server refused the signature"
		}
		return NewCompleteError(invoiceID, msg)
	}

	return nil
}

// FetchInvoicePDF downloads the raw PDF bytes for one invoice. maxBytes
// bounds the download size; a zero or negative value means no limit.
func (c *Client) FetchInvoicePDF(ctx context.Context, batchDocumentID, invoiceID string, maxBytes int) ([]byte, error) {
	url := fmt.Sprintf("%s/sign/%s/invoices/%s/pdf", c.baseURL, batchDocumentID, invoiceID)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, WrapPDFFetchError(err, invoiceID, "pdf download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapPDFFetchError(
			fmt.Errorf("status %d", resp.StatusCode),
			invoiceID,
			"pdf download failed",
		)
	}

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, int64(maxBytes)+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, WrapPDFFetchError(err, invoiceID, "pdf download failed")
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, WrapPDFFetchError(
			fmt.Errorf("body exceeds %d bytes", maxBytes),
			invoiceID,
			"pdf too large",
		)
	}

	return data, nil
}

// doJSON marshals body as JSON and sends it.
func (c *Client) doJSON(ctx context.Context, method, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, method, url, bytes.NewReader(payload))
}

// do sends a single request with the bearer token, honoring the client-side
// rate limiter when configured.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

// readServerMessage extracts the optional message field from an error body.
// Malformed or empty bodies yield "".
func readServerMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return ""
	}
	var parsed serverErrorBody
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ""
	}
	return parsed.Message
}
