package middleware

import (
	"context"

	"polaris-hq/polaris/pkg/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey stores the unique request id.
	RequestIDKey contextKey = "request_id"

	// IdentityKey stores the authenticated identity.
	IdentityKey contextKey = "identity"

	// RelayHopKey marks a request as an authenticated relay hop from a
	// peer gateway.
	RelayHopKey contextKey = "relay_hop"
)

// GetRequestID extracts the request id from the context, empty when
// absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetIdentity extracts the authenticated identity, nil when absent.
func GetIdentity(ctx context.Context) *auth.Identity {
	if identity, ok := ctx.Value(IdentityKey).(*auth.Identity); ok {
		return identity
	}
	return nil
}

// IsRelayHop reports whether the request arrived over the relay hop.
func IsRelayHop(ctx context.Context) bool {
	relayed, ok := ctx.Value(RelayHopKey).(bool)
	return ok && relayed
}
