// Package access is the authorization checkpoint in front of every privileged
// handler.
//
// A request moves through
//
//	Unverified → TokenExtracted → IdentityResolved → ProfileResolved → RoleResolved → Authorized | Denied
//
// and ends either with a *Context or with an apperr error (Unauthenticated,
// InsufficientPrivilege or StoreFailure). A denied request never mutates
// anything.
//
// Handlers either call the gate directly:
//
//	caller, err := gate.RequireAdminContext(r)
//	if err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//
// or mount it as middleware and read the caller back:
//
//	router.Handle("/api/admin/users", gate.Admin(listUsers))
//	caller := access.FromContext(r.Context())
package access
