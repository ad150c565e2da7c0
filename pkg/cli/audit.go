package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/controlplane/pkg/audit"
)

func newAuditTailCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "audit-tail",
		Description: "Print the newest audit log entries",
		Flags:       flag.NewFlagSet("audit-tail", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)

	limit := cmd.Flags.Int("limit", 20, "Number of entries to print")
	asJSON := cmd.Flags.Bool("json", false, "Print entries as JSON lines")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *limit < 1 {
			return fmt.Errorf("--limit must be positive")
		}
		return auditTail(context.Background(), env, *limit, *asJSON)
	}

	return cmd
}

func auditTail(ctx context.Context, env *Env, limit int, asJSON bool) error {
	kv, err := env.store(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	entries, err := audit.NewLog(kv, env.AuditOptions...).List(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON {
		encoder := json.NewEncoder(env.Out)
		for _, e := range entries {
			if err := encoder.Encode(e); err != nil {
				return fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tADMIN\tACTION\tTARGET\tDETAILS")
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			data, _ := json.Marshal(e.Details)
			details = string(data)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.AdminID, e.Action, e.TargetID, details)
	}
	return w.Flush()
}

func newAuditTrimCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "audit-trim",
		Description: "Evict audit entries beyond the retention limit",
		Flags:       flag.NewFlagSet("audit-trim", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		ctx := context.Background()
		kv, err := env.store(ctx)
		if err != nil {
			return err
		}
		defer kv.Close()

		auditLog := audit.NewLog(kv, env.AuditOptions...)
		evicted, err := auditLog.Trim(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Evicted %d entries (retention %d)\n", evicted, auditLog.Retention())
		return nil
	}

	return cmd
}
