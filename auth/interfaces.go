// Package auth provides the current-user lookup consumed by request-scoped
// logging. Authentication itself is kept minimal: static API keys mapped to
// users, stored in the request context.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common authentication errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
)

// User is an authenticated identity.
type User struct {
	ID              uuid.UUID
	Username        string
	Email           string
	Roles           []string
	IsAuthenticated bool
}

// HasRole reports whether u holds role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CurrentUserProvider defines the interface for resolving the caller of the
// current unit of work
type CurrentUserProvider interface {
	// CurrentUser returns the caller, or nil if there is none
	CurrentUser(ctx context.Context) *User
	// RequireUser returns the caller or ErrNotAuthenticated
	RequireUser(ctx context.Context) (*User, error)
}

// contextKey is the context key type for the auth package
type contextKey string

const userKey contextKey = "current_user"

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// ContextProvider resolves the current user from values set by WithUser.
type ContextProvider struct{}

var _ CurrentUserProvider = ContextProvider{}

func (ContextProvider) CurrentUser(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	u, _ := ctx.Value(userKey).(*User)
	return u
}

func (p ContextProvider) RequireUser(ctx context.Context) (*User, error) {
	u := p.CurrentUser(ctx)
	if u == nil || !u.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}
