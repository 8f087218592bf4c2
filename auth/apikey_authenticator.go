package auth

import (
	"context"
	"net/http"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys
type APIKeyAuthenticator struct {
	users map[string]User
}

// NewAPIKeyAuthenticator creates a new API key authenticator. Keys that are
// empty are ignored.
func NewAPIKeyAuthenticator(keys map[string]User) *APIKeyAuthenticator {
	users := make(map[string]User, len(keys))
	for key, u := range keys {
		if key != "" {
			u.IsAuthenticated = true
			users[key] = u
		}
	}
	return &APIKeyAuthenticator{users: users}
}

// Authenticate validates a token and returns the user it belongs to
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return nil, ErrAuthenticationFailed
	}

	u, ok := a.users[token]
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return &u, nil
}

// Middleware stores the user identified by the Authorization header in the
// request context. Requests without a valid key continue anonymously;
// handlers that need a caller use RequireUser.
func (a *APIKeyAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); header != "" {
			if u, err := a.Authenticate(r.Context(), header); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}
