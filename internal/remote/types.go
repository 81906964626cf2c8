package remote

// types.go defines the wire types for the remote signing API.
//
// The accept response issues one signing session per invoice. The session
// token captured here is the only token ever sent to prepare and complete.
// The prepare response also carries a field named signingSessionId on the
// wire, but that value is a server-side artifact of the prepare step and
// must never replace the accept-time token, so it is bound to a field with
// a deliberately different name (PreparedToken).

// InvoiceSeed is one entry of the accept response: the identity of one
// invoice plus the session token that authorizes its signing.
type InvoiceSeed struct {
	// DocumentID is the invoice-level document identifier (distinct from
	// the batch's document identifier).
	DocumentID string `json:"documentIdentifier"`

	// SigningSessionID is the session token issued at accept time. It is
	// required, unchanged, by both the prepare and the complete call.
	SigningSessionID string `json:"signingSessionId"`

	// InvoiceID is the server-assigned invoice label.
	InvoiceID string `json:"invoiceId"`
}

type acceptResponse struct {
	SigningSessions []InvoiceSeed `json:"signingSessions"`
}

type prepareRequest struct {
	Alias            string `json:"alias"`
	SigningSessionID string `json:"signingSessionId"`
	SerialNumber     string `json:"serialNumber"`
}

type prepareResponse struct {
	// Digest is the value the local agent must sign.
	Digest string `json:"digest"`

	// PreparedToken is the prepare step's own signingSessionId wire field.
	// It is NOT the session token: callers must ignore it.
	PreparedToken string `json:"signingSessionId"`

	Message string `json:"message"`
}

type completeRequest struct {
	SigningSessionID string `json:"signingSessionId"`
	SignatureValue   string `json:"signatureValue"`
	Certificate      string `json:"certificate"`
	Algorithm        string `json:"algorithm"`
}

type completeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// serverErrorBody is the error payload the signing server returns alongside
// non-2xx statuses. Message is optional.
type serverErrorBody struct {
	Message string `json:"message"`
}
