package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithIdentity attaches the actor identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom extracts the actor identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware validates bearer tokens and injects the identity.
type Middleware struct {
	tokens *Tokens
}

func NewMiddleware(tokens *Tokens) *Middleware {
	return &Middleware{tokens: tokens}
}

// Wrap rejects requests without a valid token and passes the identity
// down via the request context.
func (m *Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		id, err := m.tokens.Parse(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		// Legacy header used by the first-generation clients.
		return strings.TrimSpace(r.Header.Get("x-auth-token"))
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
