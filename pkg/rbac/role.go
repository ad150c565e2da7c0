package rbac

import (
	"strings"

	"github.com/platinummonkey/controlplane/pkg/apperr"
)

// Role is a principal's privilege tier
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every recognized role from least to most privileged
var Roles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

// Valid reports whether r is a recognized role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdministrative reports whether r is admin or super_admin
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// ParseRole validates a role supplied as input to a mutation
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", apperr.Validation("unrecognized role %q", s)
	}
	return r, nil
}

// OrDefault returns r when it is recognized and RoleUser otherwise
func (r Role) OrDefault() Role {
	if r.Valid() {
		return r
	}
	return RoleUser
}
