package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/phambaophuc/background-remover/internal/apperror"
)

const MsgUnauthorized = "Unauthorized: Invalid API key"

// APIKeyAuthenticator checks a caller-supplied shared secret.
type APIKeyAuthenticator struct {
	enabled bool
	digest  [32]byte
}

func NewAPIKeyAuthenticator(enabled bool, apiKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		enabled: enabled,
		digest:  sha256.Sum256([]byte(apiKey)),
	}
}

func (a *APIKeyAuthenticator) Enabled() bool {
	return a.enabled
}

// Authenticate compares the full presented key against the configured one.
// Both sides are hashed first so the comparison time does not depend on
// either length.
func (a *APIKeyAuthenticator) Authenticate(presented string) error {
	if !a.enabled {
		return nil
	}
	if presented == "" {
		return apperror.Auth(MsgUnauthorized)
	}

	got := sha256.Sum256([]byte(presented))
	if subtle.ConstantTimeCompare(got[:], a.digest[:]) != 1 {
		return apperror.Auth(MsgUnauthorized)
	}
	return nil
}
