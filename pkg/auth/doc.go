// Package auth resolves the acting identity of a request.
//
// Authenticating callers is not this service's job: an upstream gateway verifies
// credentials and forwards the numeric user id in the X-Actor-ID header. ActorMiddleware
// trusts that header and stores an Actor in the request context, and ContextIdentity
// reads it back for the permission evaluator.
//
// A request without an actor is not rejected here. ContextIdentity reports
// ErrNotAuthenticated and the evaluator falls back to the organization's guest role.
//
//	router.Use(auth.ActorMiddleware(logger))
//	evaluator := rbac.NewEvaluator(auth.ContextIdentity{}, store, store, rbac.WithAdminRoleID(1))
package auth
