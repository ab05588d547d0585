package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// QueryParam carries the token for clients that cannot set headers (websocket, <img>, downloads).
const QueryParam = "access_token"

// Service checks requests against a bcrypt hash of the access token
type Service struct {
	tokenHash []byte
}

// NewService creates an auth service. An empty tokenHash disables authentication.
func NewService(tokenHash string) *Service {
	if tokenHash == "" {
		log.Warn().Msg("ACCESS_TOKEN_HASH not set, API is unauthenticated")
	}
	return &Service{tokenHash: []byte(tokenHash)}
}

// Enabled reports whether requests are checked.
func (s *Service) Enabled() bool {
	return len(s.tokenHash) > 0
}

// Middleware creates an authentication middleware
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := tokenFromRequest(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing access token")
			return
		}

		if err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)); err != nil {
			log.Debug().Str("path", r.URL.Path).Msg("Rejected access token")
			writeJSONError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest reads a Bearer Authorization header, falling back to the access_token query
// parameter. ok is false for a malformed header.
func tokenFromRequest(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return r.URL.Query().Get(QueryParam), true
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
