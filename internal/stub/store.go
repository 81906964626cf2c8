package stub

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// memoryStore holds the stub's signing sessions. It deliberately tracks the
// tokens it hands out from the prepare step separately, so a client that
// wrongly threads a prepare token into complete gets a hard, descriptive
// failure instead of silently succeeding.
type memoryStore struct {
	mu sync.Mutex

	// sessions indexes accept-time tokens
	sessions map[string]*session

	// prepareTokens records the decoy tokens returned by prepare
	prepareTokens map[string]bool
}

type session struct {
	documentID string
	invoiceID  string
	digest     string
	prepared   bool
	completed  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:      map[string]*session{},
		prepareTokens: map[string]bool{},
	}
}

// accept issues count sessions for a document link.
func (m *memoryStore) accept(documentID string, count int) []acceptedSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	issued := make([]acceptedSession, 0, count)
	for i := 1; i <= count; i++ {
		token := uuid.NewString()
		invoiceID := fmt.Sprintf("INV-%s-%d", documentID, i)
		m.sessions[token] = &session{
			documentID: documentID,
			invoiceID:  invoiceID,
		}
		issued = append(issued, acceptedSession{
			DocumentID:       fmt.Sprintf("%s-%d", documentID, i),
			SigningSessionID: token,
			InvoiceID:        invoiceID,
		})
	}
	return issued
}

// prepare returns the digest for the session behind token, plus a decoy
// token that must never come back on complete.
func (m *memoryStore) prepare(token string) (digest, decoyToken string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prepareTokens[token] {
		return "", "", fmt.Errorf("a prepare-issued token was used as the session token; use the accept-time token")
	}

	sess, ok := m.sessions[token]
	if !ok {
		return "", "", fmt.Errorf("unknown signing session")
	}

	sum := sha256.Sum256([]byte(sess.invoiceID + token))
	sess.digest = hex.EncodeToString(sum[:])
	sess.prepared = true

	decoy := "prep-" + uuid.NewString()
	m.prepareTokens[decoy] = true

	return sess.digest, decoy, nil
}

// complete validates the signature for the session behind token.
func (m *memoryStore) complete(token, signatureValue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prepareTokens[token] {
		return fmt.Errorf("a prepare-issued token was used as the session token; use the accept-time token")
	}

	sess, ok := m.sessions[token]
	if !ok {
		return fmt.Errorf("unknown signing session")
	}
	if !sess.prepared {
		return fmt.Errorf("session has not been prepared")
	}
	if sess.completed {
		return fmt.Errorf("session already completed")
	}
	if signatureValue != stubSignature(sess.digest) {
		return fmt.Errorf("signature does not match digest")
	}

	sess.completed = true
	return nil
}

// stubSignature is the deterministic "signature" the stub agent produces for
// a digest; complete checks against the same value.
func stubSignature(digest string) string {
	return "stub-sig-" + digest
}
