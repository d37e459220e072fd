package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// APIKeyHeader is the alternative to an Authorization: Bearer header.
const APIKeyHeader = "X-API-Key"

// HashToken returns the hex SHA-256 digest of a raw admin token. Only
// digests are kept in configuration.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewToken returns a random 32-byte hex-encoded admin token.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Admin requires a token whose digest is in hashes for every request that
// can change server state. GET, HEAD and OPTIONS pass through. An empty
// hashes list disables the check.
func Admin(hashes []string) func(http.Handler) http.Handler {
	digests := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			digests = append(digests, []byte(h))
		}
	}
	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			token := extractToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing admin token")
				return
			}
			presented := []byte(HashToken(token))
			for _, d := range digests {
				if subtle.ConstantTimeCompare(presented, d) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusUnauthorized, "invalid admin token")
		})
	}
}

// extractToken reads Authorization: Bearer first, then X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}` + "\n"))
}
