// Package admin implements the user-facing profile API and the
// administrative user management API on top of the access gate.
//
// Every admin mutation follows the same order:
//
//  1. resolve the target profile and effective role (NotFound if absent)
//  2. check the rbac edge rules against caller and target
//  3. perform the write
//  4. record an audit entry
//
// A rule violation returns before any write. Audit recording happens only
// after the write succeeded and cannot fail the request.
//
// Routes:
//
//	GET    /api/profile                          authenticated
//	PUT    /api/profile                          authenticated
//	GET    /api/usage                            authenticated
//	GET    /api/analyses                         authenticated
//	GET    /api/admin/users                      admin
//	GET    /api/admin/users/{id}                 admin
//	PUT    /api/admin/users/{id}/role            admin
//	PUT    /api/admin/users/{id}/account-type    admin
//	PUT    /api/admin/users/{id}/status          admin
//	DELETE /api/admin/users/{id}                 admin
//	GET    /api/admin/logs?limit=N               admin
//	GET    /api/admin/stats                      admin
package admin
