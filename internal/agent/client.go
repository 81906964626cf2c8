// Package agent implements the client for the local signing agent, the
// background process that brokers access to the user's hardware-backed
// signing key.
//
// The agent listens on a fixed local HTTP endpoint. Because it is a separate
// process the user may not have started (or that may have crashed
// mid-session), connection-refused is classified as its own error code:
// user guidance for "agent not running" differs from "no card inserted"
// (agent reachable, zero certificates) and from an actual sign failure.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Client is an HTTP client for the local signing agent.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the agent at baseURL. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListCertificates returns the signing certificates currently available
// through the agent. An empty slice with a nil error means the agent is
// running but no smart card or token is inserted.
func (c *Client) ListCertificates(ctx context.Context) ([]Certificate, error) {
	url := c.baseURL + "/api/certificates"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, WrapAgentError(err, "failed to build certificate request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, WrapNotRunningError(err, "the signing agent is not running")
		}
		return nil, WrapAgentError(err, "failed to reach the signing agent")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapAgentError(
			fmt.Errorf("status %d", resp.StatusCode),
			"certificate listing failed",
		)
	}

	var certs []Certificate
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, WrapAgentError(err, "failed to decode certificate list")
	}

	c.logger.Debug("agent certificates listed", slog.Int("count", len(certs)))

	return certs, nil
}

// SignDigest asks the agent to sign one digest with the key behind alias.
// The previous invoice's sign call must have fully resolved before the next
// one is issued; the orchestrator serializes calls, not this client.
func (c *Client) SignDigest(ctx context.Context, digest, algorithm, alias string) (*SignResult, error) {
	url := c.baseURL + "/api/certificates/signe"

	payload, err := json.Marshal(signRequest{
		Digest:    digest,
		Algorithm: algorithm,
		Alias:     alias,
	})
	if err != nil {
		return nil, WrapSignError(err, "failed to marshal sign request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, WrapSignError(err, "failed to build sign request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionRefused(err) {
			// the agent was up earlier in the session and has gone away
			return nil, WrapNotRunningError(err, "the signing agent is unreachable")
		}
		return nil, WrapSignError(err, "failed to reach the signing agent")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapSignError(
			fmt.Errorf("status %d", resp.StatusCode),
			"the agent refused to sign",
		)
	}

	var signed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return nil, WrapSignError(err, "failed to decode sign response")
	}

	if signed.SignatureValue == "" || signed.Certificate == "" {
		msg := signed.Message
		if msg == "" {
			msg = "sign response missing signature or certificate"
		}
		return nil, NewSignError(msg)
	}

	return &SignResult{
		SignatureValue:   signed.SignatureValue,
		CertificateBytes: signed.Certificate,
	}, nil
}

// isConnectionRefused reports whether err means nothing is listening on the
// agent endpoint. Other dial failures, such as timeouts or resolver errors,
// point at a misconfigured AGENT_URL rather than a stopped agent and must
// not trigger the "start the agent" guidance.
func isConnectionRefused(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
