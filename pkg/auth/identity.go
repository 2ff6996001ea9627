package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/sirupsen/logrus"
)

const (
	// ActorHeader carries the authenticated user id set by the upstream gateway.
	ActorHeader = "X-Actor-ID"
	// ActorNameHeader optionally carries the user name for logging.
	ActorNameHeader = "X-Actor-Name"
)

// IdentityProvider reports the user a call is made on behalf of.
type IdentityProvider interface {
	// CurrentActorID returns the acting user id or ErrNotAuthenticated.
	CurrentActorID(ctx context.Context) (int64, error)
}

// ContextIdentity reads the actor stored by ActorMiddleware.
type ContextIdentity struct{}

// CurrentActorID implements IdentityProvider.
func (ContextIdentity) CurrentActorID(ctx context.Context) (int64, error) {
	actor := ActorFromContext(ctx)
	if actor == nil {
		return 0, ErrNotAuthenticated
	}
	return actor.UserID, nil
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return contextkeys.WithActor(ctx, actor)
}

// ActorFromContext returns the actor stored in ctx, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	actor, ok := ctx.Value(contextkeys.ActorKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// ParseActor builds an Actor from the gateway headers. A missing header yields
// (nil, nil); a malformed one is an error.
func ParseActor(r *http.Request) (*Actor, error) {
	raw := strings.TrimSpace(r.Header.Get(ActorHeader))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid %s header %q", ActorHeader, raw)
	}
	return &Actor{
		UserID:   id,
		Username: r.Header.Get(ActorNameHeader),
	}, nil
}

// ActorMiddleware attaches the gateway-supplied actor to the request context.
// Anonymous requests pass through untouched; malformed headers are rejected with 400.
func ActorMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := ParseActor(r)
			if err != nil {
				logger.WithError(err).Warn("Rejecting request with malformed actor header")
				httputil.WriteBadRequest(w, "invalid actor header")
				return
			}
			if actor == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
