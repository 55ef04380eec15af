// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Handlers in pkg/api use these helpers so every response has the same
// shape. Errors are always written as
//
//	{"message": "..."}
//
// which is what pkg/apiclient reads back into apiclient.Error. Validation
// failures additionally list the failed fields.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNoContent(w)
//
//	httputil.WriteBadRequest(w, "invalid input")
//	httputil.WriteValidationError(w, vErr)
//	httputil.WriteInternalError(w)
//
// # Request Parsing
//
//	var req tenantusers.InviteUserData
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenantId")
//	page, err := httputil.ParseQueryInt(r, "page", 0)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: session authentication and rate limiting
package httputil
