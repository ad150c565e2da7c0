package rbac

import "github.com/platinummonkey/controlplane/pkg/apperr"

// Principal is an identity with its resolved role
type Principal struct {
	ID   string
	Role Role
}

// CanModify checks that caller may change any attribute of target. Only an
// administrative caller may touch a super_admin.
func CanModify(caller, target Principal) error {
	if target.Role == RoleSuperAdmin && !caller.Role.IsAdministrative() {
		return apperr.InsufficientPrivilege("only administrators can modify a super_admin")
	}
	return nil
}

// CanChangeRole checks that caller may set target's role to newRole
func CanChangeRole(caller, target Principal, newRole Role) error {
	if newRole == RoleSuperAdmin && !caller.Role.IsAdministrative() {
		return apperr.InsufficientPrivilege("only administrators can grant super_admin")
	}
	return CanModify(caller, target)
}

// CanDelete checks that caller may delete target through the administrative
// delete path
func CanDelete(caller, target Principal) error {
	if caller.ID == target.ID {
		return apperr.InsufficientPrivilege("cannot delete your own account")
	}
	if !caller.Role.IsAdministrative() {
		return apperr.InsufficientPrivilege("administrator role required")
	}
	if target.Role == RoleSuperAdmin && caller.Role != RoleSuperAdmin {
		return apperr.InsufficientPrivilege("only a super_admin can delete a super_admin")
	}
	return nil
}
