package main

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/controlplane/pkg/cli"
	"github.com/platinummonkey/controlplane/pkg/config"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/observability"
)

func main() {
	cfg, err := config.LoadOperatorConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	auditOpts, err := cfg.AuditOptions(context.Background(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cli.NewRootCommand(&cli.Env{
		Out:    os.Stdout,
		Logger: observability.NewLogger(cfg.Level(), observability.FormatText, os.Stderr),
		OpenStore: func(ctx context.Context) (kvstore.Store, error) {
			return kvstore.Open(ctx, cfg.KVStore(), nil)
		},
		AuditOptions: auditOpts,
	})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
