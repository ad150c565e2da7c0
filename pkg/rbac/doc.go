// Package rbac resolves a principal's effective role and evaluates the
// privilege edge rules administrative operations must honor.
//
// # Roles
//
// There are three tiers, least privileged first:
//
//	RoleUser       - every authenticated principal
//	RoleAdmin      - may use the administrative API
//	RoleSuperAdmin - administrator that only another super_admin may delete
//
// # Role Records
//
// A principal's role lives in two places: a dedicated role record under
// "user_role_{id}" and a mirrored field on the profile. The role record is
// authoritative for elevation:
//
//	role, err := resolver.ResolveRole(ctx, id, profile.Role)
//
// An administrative record wins outright, a "user" record yields user, and an
// absent or unrecognized record falls back to the supplied role (normally the
// profile's), which itself defaults to user.
//
// # Edge Rules
//
// Policy checks run against the caller's and the target's resolved roles and
// return apperr InsufficientPrivilege errors:
//
//	if err := rbac.CanDelete(caller, target); err != nil {
//		return err // nothing has been mutated
//	}
//
//   - CanChangeRole: only an administrative caller may grant super_admin or
//     touch a principal already at super_admin
//   - CanDelete: never yourself; admin cannot delete super_admin; super_admin
//     can delete anyone else
package rbac
