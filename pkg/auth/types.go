package auth

import "errors"

// ErrNotAuthenticated is returned when no acting user is attached to the context.
var ErrNotAuthenticated = errors.New("not authenticated")

// Actor is the authenticated user a request acts on behalf of.
type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
}
