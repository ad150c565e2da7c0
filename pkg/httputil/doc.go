// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, profile)
//	httputil.WriteNoContent(w)
//
// Errors from the domain packages are classified with pkg/apperr and mapped
// to a status code in one place:
//
//	if err != nil {
//		httputil.WriteAppError(w, r, err) // 401, 403, 404, 400 or 500
//		return
//	}
//
// # Request Parsing
//
//	var req UpdateRoleRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//	id, err := httputil.ParsePathString(r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1 << 20),
//	)(router)
package httputil
