package admin

import (
	"context"
	"strings"

	"github.com/platinummonkey/controlplane/pkg/access"
	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/profile"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"github.com/platinummonkey/controlplane/pkg/usage"
	"golang.org/x/sync/errgroup"
)

const maxNameLength = 200

// Service implements the administrative user operations. Every mutation
// resolves its target, checks the edge rules, writes, then records an audit
// entry.
type Service struct {
	profiles *profile.Resolver
	roles    *rbac.Resolver
	records  *usage.Records
	auditLog *audit.Log
}

// NewService creates an admin service
func NewService(profiles *profile.Resolver, roles *rbac.Resolver, records *usage.Records, auditLog *audit.Log) *Service {
	return &Service{
		profiles: profiles,
		roles:    roles,
		records:  records,
		auditLog: auditLog,
	}
}

// target loads id's profile and resolves its effective role
func (s *Service) target(ctx context.Context, id string) (profile.Profile, rbac.Principal, error) {
	p, err := s.profiles.Load(ctx, id)
	if err != nil {
		return profile.Profile{}, rbac.Principal{}, err
	}
	role, err := s.roles.ResolveRole(ctx, id, p.Role)
	if err != nil {
		return profile.Profile{}, rbac.Principal{}, err
	}
	p.Role = role
	return p, rbac.Principal{ID: id, Role: role}, nil
}

// UpdateRole writes targetID's role record and mirrors it onto the profile
func (s *Service) UpdateRole(ctx context.Context, caller *access.Context, targetID, newRole string) (User, error) {
	role, err := rbac.ParseRole(newRole)
	if err != nil {
		return User{}, err
	}

	p, target, err := s.target(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if err := rbac.CanChangeRole(caller.Principal(), target, role); err != nil {
		return User{}, err
	}

	if err := s.roles.Assign(ctx, targetID, role); err != nil {
		return User{}, err
	}
	p.Role = role
	if err := s.profiles.Save(ctx, p); err != nil {
		return User{}, err
	}

	s.auditLog.Record(ctx, caller.Identity.ID, audit.ActionUpdateUserRole, targetID, map[string]interface{}{
		"oldRole": string(target.Role),
		"newRole": string(role),
	})
	return User{Profile: p}, nil
}

// UpdateAccountType changes targetID's account type
func (s *Service) UpdateAccountType(ctx context.Context, caller *access.Context, targetID, accountType string) (User, error) {
	at, err := profile.ParseAccountType(accountType)
	if err != nil {
		return User{}, err
	}

	p, target, err := s.target(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if err := rbac.CanModify(caller.Principal(), target); err != nil {
		return User{}, err
	}

	old := p.AccountType
	p.AccountType = at
	if err := s.profiles.Save(ctx, p); err != nil {
		return User{}, err
	}

	s.auditLog.Record(ctx, caller.Identity.ID, audit.ActionUpdateAccountType, targetID, map[string]interface{}{
		"oldAccountType": string(old),
		"newAccountType": string(at),
	})
	return User{Profile: p}, nil
}

// SetActive activates or deactivates targetID
func (s *Service) SetActive(ctx context.Context, caller *access.Context, targetID string, active bool) (User, error) {
	p, target, err := s.target(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if err := rbac.CanModify(caller.Principal(), target); err != nil {
		return User{}, err
	}

	p.IsActive = active
	if err := s.profiles.Save(ctx, p); err != nil {
		return User{}, err
	}

	s.auditLog.Record(ctx, caller.Identity.ID, audit.ActionToggleUserStatus, targetID, map[string]interface{}{
		"isActive": active,
	})
	return User{Profile: p}, nil
}

// DeleteUser removes targetID's role record, usage and analyses, then the
// profile. The profile goes last so a partially failed delete can be retried.
func (s *Service) DeleteUser(ctx context.Context, caller *access.Context, targetID string) (DeleteResult, error) {
	p, target, err := s.target(ctx, targetID)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := rbac.CanDelete(caller.Principal(), target); err != nil {
		return DeleteResult{}, err
	}

	var analysesDeleted int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.roles.Delete(gctx, targetID)
	})
	g.Go(func() error {
		n, err := s.records.DeleteUser(gctx, targetID)
		analysesDeleted = n
		return err
	})
	if err := g.Wait(); err != nil {
		return DeleteResult{}, err
	}
	if err := s.profiles.Delete(ctx, targetID); err != nil {
		return DeleteResult{}, err
	}

	s.auditLog.Record(ctx, caller.Identity.ID, audit.ActionDeleteUser, targetID, map[string]interface{}{
		"email":           p.Email,
		"role":            string(target.Role),
		"analysesDeleted": analysesDeleted,
	})
	return DeleteResult{UserID: targetID, AnalysesDeleted: analysesDeleted}, nil
}

// ListUsers returns every user with their resolved role, newest first
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]User, len(profiles))
	for i, p := range profiles {
		role, err := s.roles.ResolveRole(ctx, p.ID, p.Role)
		if err != nil {
			return nil, err
		}
		p.Role = role
		users[i] = User{Profile: p}
	}
	return users, nil
}

// GetUser returns one user with their usage
func (s *Service) GetUser(ctx context.Context, id string) (UserDetail, error) {
	p, _, err := s.target(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	u, err := s.records.GetUsage(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	analyses, err := s.records.ListAnalyses(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	return UserDetail{User: User{Profile: p}, Usage: u, Analyses: len(analyses)}, nil
}

// Stats counts users by role, account type and activity
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return Stats{}, err
	}
	entries, err := s.auditLog.Count(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalUsers:    len(users),
		ByRole:        make(map[rbac.Role]int, len(rbac.Roles)),
		ByAccountType: make(map[profile.AccountType]int),
		AuditEntries:  entries,
	}
	for _, role := range rbac.Roles {
		stats.ByRole[role] = 0
	}
	for _, u := range users {
		stats.ByRole[u.Role]++
		stats.ByAccountType[u.AccountType]++
		if u.IsActive {
			stats.ActiveUsers++
		}
	}
	return stats, nil
}

// AuditLog returns up to limit entries, newest first
func (s *Service) AuditLog(ctx context.Context, limit int) ([]audit.Entry, error) {
	return s.auditLog.List(ctx, limit)
}

// Me returns the caller's profile with the resolved role
func (s *Service) Me(caller *access.Context) User {
	p := caller.Profile
	p.Role = caller.Role
	return User{Profile: p}
}

// UpdateOwnProfile applies a self-service edit. Role, account type and
// activity are not editable here.
func (s *Service) UpdateOwnProfile(ctx context.Context, caller *access.Context, req UpdateProfileRequest) (User, error) {
	p, err := s.profiles.Load(ctx, caller.Identity.ID)
	if err != nil {
		return User{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return User{}, apperr.Validation("name must not be empty")
		}
		if len(name) > maxNameLength {
			return User{}, apperr.Validation("name must be at most %d characters", maxNameLength)
		}
		p.Name = name
	}
	if req.Preferences != nil {
		p.Preferences = req.Preferences.apply(p.Preferences)
	}

	if err := s.profiles.Save(ctx, p); err != nil {
		return User{}, err
	}
	p.Role = caller.Role
	return User{Profile: p}, nil
}

// Usage returns the caller's metering record
func (s *Service) Usage(ctx context.Context, caller *access.Context) (usage.Usage, error) {
	return s.records.GetUsage(ctx, caller.Identity.ID)
}

// Analyses returns the caller's own analyses
func (s *Service) Analyses(ctx context.Context, caller *access.Context) ([]usage.Analysis, error) {
	return s.records.ListAnalyses(ctx, caller.Identity.ID)
}
