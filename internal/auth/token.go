// Package auth loads the bearer token used against the remote signing API.
//
// Obtaining the token is a separate credential exchange outside this client;
// here it is only read from the environment (or a file) and inspected so an
// already-expired token is reported before the signing flow starts instead
// of as a confusing server error halfway through.
package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/esign-networks/invoice-signer/app/internal/config"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// LoadToken returns the bearer token from API_TOKEN or API_TOKEN_FILE.
func LoadToken(cfg *config.ClientEnvironment) (string, error) {
	if cfg.APIToken != "" {
		return cfg.APIToken, nil
	}

	if cfg.APITokenFile != "" {
		data, err := os.ReadFile(cfg.APITokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read API_TOKEN_FILE: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("API_TOKEN_FILE %s is empty", cfg.APITokenFile)
		}
		return token, nil
	}

	return "", fmt.Errorf("no API token configured: set API_TOKEN or API_TOKEN_FILE")
}

// CheckExpiry parses the token as a JWT and returns an error when it carries
// an exp claim in the past. Signature verification is deliberately skipped:
// the client holds no server keys, and the server re-validates anyway.
// Tokens that are not JWTs pass the check.
func CheckExpiry(token string, now time.Time) error {
	parsed, err := jwt.ParseString(token, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		// opaque tokens are allowed; the server decides
		return nil
	}

	expiration, ok := parsed.Expiration()
	if !ok {
		return nil
	}

	if now.After(expiration) {
		return fmt.Errorf("the API token expired at %s: request a fresh signing link", expiration.Format(time.RFC3339))
	}

	return nil
}
