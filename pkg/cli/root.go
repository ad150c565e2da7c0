package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/sirupsen/logrus"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env carries what the operator commands need to reach the store
type Env struct {
	Out       io.Writer
	Logger    *logrus.Logger
	OpenStore func(ctx context.Context) (kvstore.Store, error)

	// AuditOptions configure the audit log the commands write to
	AuditOptions []audit.Option
}

func (e *Env) store(ctx context.Context) (kvstore.Store, error) {
	kv, err := e.OpenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return kv, nil
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Logger == nil {
		env.Logger = logrus.StandardLogger()
	}

	root := &Command{
		Name:        "controlplane-cli",
		Description: "Control plane operator commands",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("controlplane-cli", flag.ContinueOnError),
	}
	root.Flags.SetOutput(env.Out)

	// Add subcommands
	root.Subcommands["grant-role"] = newGrantRoleCommand(env)
	root.Subcommands["audit-tail"] = newAuditTailCommand(env)
	root.Subcommands["audit-trim"] = newAuditTrimCommand(env)

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.Flags.Output()
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
