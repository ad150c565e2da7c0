package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/profile"
	"github.com/platinummonkey/controlplane/pkg/rbac"
	"github.com/sirupsen/logrus"
)

func newGrantRoleCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "grant-role",
		Description: "Write a role record directly (bootstraps the first super_admin)",
		Flags:       flag.NewFlagSet("grant-role", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)

	userID := cmd.Flags.String("user", "", "User ID to grant the role to")
	role := cmd.Flags.String("role", string(rbac.RoleSuperAdmin), "Role to grant (user, admin, super_admin)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *userID == "" {
			return fmt.Errorf("--user is required")
		}
		r, err := rbac.ParseRole(*role)
		if err != nil {
			return err
		}
		return grantRole(context.Background(), env, *userID, r)
	}

	return cmd
}

// grantRole writes the role record and mirrors it onto the profile when one
// exists. A user who has never signed in gets the role on first login.
func grantRole(ctx context.Context, env *Env, userID string, role rbac.Role) error {
	kv, err := env.store(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	roles := rbac.NewResolver(kv)
	profiles := profile.NewResolver(kv)

	previous, hadRole, err := roles.Lookup(ctx, userID)
	if err != nil {
		return err
	}
	if err := roles.Assign(ctx, userID, role); err != nil {
		return err
	}

	p, err := profiles.Load(ctx, userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		fmt.Fprintf(env.Out, "No profile for %s yet; role applies on first sign-in\n", userID)
	case err != nil:
		return err
	default:
		p.Role = role
		if err := profiles.Save(ctx, p); err != nil {
			return err
		}
	}

	details := map[string]interface{}{"newRole": string(role)}
	if hadRole {
		details["oldRole"] = string(previous)
	}
	audit.NewLog(kv, env.AuditOptions...).Record(ctx, audit.SystemActor, audit.ActionGrantRoleBootstrap, userID, details)

	env.Logger.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    role,
	}).Info("Granted role")
	fmt.Fprintf(env.Out, "Granted %s to %s\n", role, userID)
	return nil
}
