package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Middleware returns a wrapper that rejects requests without a valid
// bearer token and puts the verified claims into the request context.
// The payments webhook route must NOT be wrapped: its trust comes from
// the provider signature, not from a bearer credential.
func Middleware(secret []byte, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(w, logger, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := ParseToken(secret, tokenString)
			if err != nil {
				logger.Warn("rejected bearer token", "error", err)
				writeAuthError(w, logger, http.StatusForbidden, "invalid bearer token")
				return
			}

			next(w, r.WithContext(NewContext(r.Context(), claims)))
		}
	}
}

func writeAuthError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}
