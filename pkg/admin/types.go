package admin

import (
	"strings"

	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/profile"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"github.com/platinummonkey/controlplane/pkg/usage"
)

// User is a profile whose role field carries the resolved role
type User struct {
	profile.Profile
}

// UserDetail is a user with their metering record
type UserDetail struct {
	User
	Usage    usage.Usage `json:"usage"`
	Analyses int         `json:"analyses"`
}

// Stats summarizes the user base
type Stats struct {
	TotalUsers    int                         `json:"totalUsers"`
	ActiveUsers   int                         `json:"activeUsers"`
	ByRole        map[rbac.Role]int           `json:"byRole"`
	ByAccountType map[profile.AccountType]int `json:"byAccountType"`
	AuditEntries  int                         `json:"auditEntries"`
}

// UpdateRoleRequest is the body of PUT /api/admin/users/{id}/role
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateAccountTypeRequest is the body of PUT /api/admin/users/{id}/account-type
type UpdateAccountTypeRequest struct {
	AccountType string `json:"accountType"`
}

// UpdateStatusRequest is the body of PUT /api/admin/users/{id}/status
type UpdateStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// UpdateProfileRequest is the body of PUT /api/profile. Nil fields are left
// unchanged.
type UpdateProfileRequest struct {
	Name        *string           `json:"name,omitempty"`
	Preferences *PreferencesPatch `json:"preferences,omitempty"`
}

// PreferencesPatch carries the preference fields a caller sent. Omitted
// fields keep their stored value.
type PreferencesPatch struct {
	Language           *string `json:"language,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
	EmailNotifications *bool   `json:"emailNotifications,omitempty"`
}

// apply merges the set fields onto prefs. Blank strings count as unset.
func (pp *PreferencesPatch) apply(prefs profile.Preferences) profile.Preferences {
	if pp.Language != nil && strings.TrimSpace(*pp.Language) != "" {
		prefs.Language = strings.TrimSpace(*pp.Language)
	}
	if pp.Timezone != nil && strings.TrimSpace(*pp.Timezone) != "" {
		prefs.Timezone = strings.TrimSpace(*pp.Timezone)
	}
	if pp.EmailNotifications != nil {
		prefs.EmailNotifications = *pp.EmailNotifications
	}
	return prefs
}

// DeleteResult reports what a user deletion removed
type DeleteResult struct {
	UserID          string `json:"userId"`
	AnalysesDeleted int    `json:"analysesDeleted"`
}

// AuditLogResponse is the body of GET /api/admin/logs
type AuditLogResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}
