// Package httputil provides HTTP helpers shared by the API handlers: JSON
// responses, path and query parsing, and the request-scoped middleware chain
// (request ids, structured request logging, panic recovery).
//
//	router.Use(httputil.RequestIDMiddleware(logger), httputil.LoggingMiddleware, httputil.RecoveryMiddleware)
//
//	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
//	if !ok {
//		return
//	}
//	httputil.WriteSuccess(w, result)
package httputil
