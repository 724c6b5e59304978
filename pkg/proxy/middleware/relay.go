package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"polaris-hq/polaris/pkg/auth"
	"polaris-hq/polaris/pkg/proxy/types"
)

// RelaySecretHeader authenticates the gateway-to-gateway relay hop.
// A gateway forwarding a request to a peer gateway includes the shared
// secret; the receiving gateway verifies it before trusting relayed
// identity headers.
const RelaySecretHeader = "X-Polaris-Relay-Secret"

// RelayUserHeader carries the original caller's username across the
// relay hop. Only trusted when the relay secret checks out.
const RelayUserHeader = "X-Polaris-Relay-User"

// Relay verifies the relay shared secret when present. A request with
// no relay header passes through untouched; a request claiming to be a
// relay hop with a wrong secret is rejected with 403. On success the
// relayed username replaces the local identity.
//
// The comparison is constant-time so the secret cannot be probed
// byte-by-byte.
func Relay(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(RelaySecretHeader)
			if presented == "" {
				next.ServeHTTP(w, r)
				return
			}

			if secret == "" || !auth.SecretsEqual(presented, secret) {
				slog.WarnContext(r.Context(), "relay hop rejected",
					"request_id", GetRequestID(r.Context()),
					"remote_addr", r.RemoteAddr,
				)
				errResp := types.NewErrorResponse(
					"relay authentication failed",
					types.ErrorTypePermissionDenied,
					"",
					types.CodeRelayUnauthorized,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(errResp)
				return
			}

			ctx := context.WithValue(r.Context(), RelayHopKey, true)
			if user := r.Header.Get(RelayUserHeader); user != "" {
				ctx = context.WithValue(ctx, IdentityKey, &auth.Identity{Username: user})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
