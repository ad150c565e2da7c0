package profile

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/identity"
	"github.com/platinummonkey/controlplane/pkg/rbac"
)

// KeyPrefix prefixes every profile key
const KeyPrefix = "user_profile_"

// Key returns the store key of id's profile
func Key(id string) string {
	return KeyPrefix + id
}

// AccountType is a user's billing tier
type AccountType string

const (
	AccountFree       AccountType = "free"
	AccountPro        AccountType = "pro"
	AccountEnterprise AccountType = "enterprise"
)

// AccountTypes lists every recognized account type
var AccountTypes = []AccountType{AccountFree, AccountPro, AccountEnterprise}

// Valid reports whether a is a recognized account type
func (a AccountType) Valid() bool {
	switch a {
	case AccountFree, AccountPro, AccountEnterprise:
		return true
	}
	return false
}

// ParseAccountType validates an account type supplied to a mutation
func ParseAccountType(s string) (AccountType, error) {
	a := AccountType(strings.TrimSpace(s))
	if !a.Valid() {
		return "", apperr.Validation("unrecognized account type %q", s)
	}
	return a, nil
}

// Preferences holds a user's locale and notification settings
type Preferences struct {
	Language           string `json:"language"`
	Timezone           string `json:"timezone"`
	EmailNotifications bool   `json:"emailNotifications"`
}

// DefaultPreferences returns the preferences of a new profile
func DefaultPreferences() Preferences {
	return Preferences{
		Language:           "en",
		Timezone:           "UTC",
		EmailNotifications: true,
	}
}

// Profile is the control plane's own record of a user
type Profile struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Role        rbac.Role   `json:"role"`
	AccountType AccountType `json:"accountType"`
	CreatedAt   time.Time   `json:"createdAt"`
	IsActive    bool        `json:"isActive"`
	Preferences Preferences `json:"preferences"`
}

// Default builds the profile a first-time caller gets. It is not persisted.
func Default(ident identity.Identity, now time.Time) Profile {
	return Profile{
		ID:          ident.ID,
		Email:       ident.Email,
		Name:        defaultName(ident),
		Role:        rbac.RoleUser,
		AccountType: AccountFree,
		CreatedAt:   now.UTC(),
		IsActive:    true,
		Preferences: DefaultPreferences(),
	}
}

func defaultName(ident identity.Identity) string {
	for _, key := range []string{"full_name", "name"} {
		if name := strings.TrimSpace(ident.MetadataString(key)); name != "" {
			return name
		}
	}
	if at := strings.Index(ident.Email, "@"); at > 0 {
		return ident.Email[:at]
	}
	return ident.Email
}

// stored mirrors Profile with pointers where absence must be told apart
// from a zero value
type stored struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Role        rbac.Role   `json:"role"`
	AccountType AccountType `json:"accountType"`
	CreatedAt   time.Time   `json:"createdAt"`
	IsActive    *bool       `json:"isActive"`
	Preferences *struct {
		Language           string `json:"language"`
		Timezone           string `json:"timezone"`
		EmailNotifications *bool  `json:"emailNotifications"`
	} `json:"preferences"`
}

// Decode parses a stored profile and applies read-time defaults
func Decode(data []byte) (Profile, error) {
	var s stored
	if err := json.Unmarshal(data, &s); err != nil {
		return Profile{}, err
	}

	p := Profile{
		ID:          s.ID,
		Email:       s.Email,
		Name:        s.Name,
		Role:        s.Role,
		AccountType: s.AccountType,
		CreatedAt:   s.CreatedAt,
		IsActive:    true,
		Preferences: DefaultPreferences(),
	}
	if s.IsActive != nil {
		p.IsActive = *s.IsActive
	}
	if s.Preferences != nil {
		if s.Preferences.Language != "" {
			p.Preferences.Language = s.Preferences.Language
		}
		if s.Preferences.Timezone != "" {
			p.Preferences.Timezone = s.Preferences.Timezone
		}
		if s.Preferences.EmailNotifications != nil {
			p.Preferences.EmailNotifications = *s.Preferences.EmailNotifications
		}
	}

	return Normalize(p), nil
}

// Normalize replaces missing or unrecognized role and account type values
// with the least privileged defaults
func Normalize(p Profile) Profile {
	p.Role = p.Role.OrDefault()
	if !p.AccountType.Valid() {
		p.AccountType = AccountFree
	}
	if p.Preferences.Language == "" {
		p.Preferences.Language = "en"
	}
	if p.Preferences.Timezone == "" {
		p.Preferences.Timezone = "UTC"
	}
	return p
}
