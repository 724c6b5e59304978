package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"polaris-hq/polaris/pkg/auth"
	"polaris-hq/polaris/pkg/proxy"
	"polaris-hq/polaris/pkg/proxy/types"
)

// Auth authenticates the bearer token and stores the resolved identity
// in the context. Requests without a valid key get a 401 envelope.
func Auth(validator *auth.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// A verified relay hop already carries the caller's
			// identity; the peer gateway validated the API key.
			if IsRelayHop(r.Context()) && GetIdentity(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			token := proxy.ExtractBearerToken(r)
			if token == "" {
				writeAuthError(w, "missing bearer token")
				return
			}

			identity, err := validator.Validate(token)
			if err != nil {
				slog.WarnContext(r.Context(), "authentication failed",
					"request_id", GetRequestID(r.Context()),
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	errResp := types.NewErrorResponse(message, types.ErrorTypeAuthentication, "", "authentication_failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errResp)
}
