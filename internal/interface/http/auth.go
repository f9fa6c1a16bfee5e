package http

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuth protects write endpoints with API keys. Keys are configured
// as bcrypt hashes: plaintext keys never appear in config or environment.
type APIKeyAuth struct {
	header string
	hashes [][]byte
}

// NewAPIKeyAuth creates API key middleware. With no hashes configured
// authentication is disabled and all requests pass through.
func NewAPIKeyAuth(header string, hashes []string) *APIKeyAuth {
	if header == "" {
		header = "X-API-Key"
	}
	auth := &APIKeyAuth{header: header}
	for _, h := range hashes {
		if h != "" {
			auth.hashes = append(auth.hashes, []byte(h))
		}
	}
	return auth
}

// Enabled reports whether any API keys are configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hashes) > 0
}

// Verify checks a presented key against the configured hashes.
func (a *APIKeyAuth) Verify(key string) bool {
	if key == "" {
		return false
	}
	for _, hash := range a.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid API key.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		if !a.Verify(r.Header.Get(a.header)) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Valid API key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
