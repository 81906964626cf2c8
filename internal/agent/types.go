package agent

import "time"

// Certificate describes one signing identity available through the agent.
// The descriptor is read-only input to the signing flow: once the user picks
// a certificate it stays fixed for the whole run.
type Certificate struct {
	Alias        string    `json:"alias"`
	SerialNumber string    `json:"serialNumber"`
	Algorithm    string    `json:"algorithm"`
	Issuer       string    `json:"issuer"`
	Subject      string    `json:"subject"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
}

// ValidAt reports whether the certificate's validity window covers t.
func (c Certificate) ValidAt(t time.Time) bool {
	if c.NotBefore.IsZero() && c.NotAfter.IsZero() {
		return true
	}
	if !c.NotBefore.IsZero() && t.Before(c.NotBefore) {
		return false
	}
	if !c.NotAfter.IsZero() && t.After(c.NotAfter) {
		return false
	}
	return true
}

// SignResult is the agent's output for one digest.
type SignResult struct {
	SignatureValue   string
	CertificateBytes string
}

type signRequest struct {
	Digest    string `json:"digest"`
	Algorithm string `json:"algorithm"`
	Alias     string `json:"alias"`
}

type signResponse struct {
	SignatureValue string `json:"signatureValue"`
	Certificate    string `json:"certificate"`
	Message        string `json:"message"`
}
