package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/controlplane/pkg/audit"
	"github.com/platinummonkey/controlplane/pkg/config"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	runOnce  = flag.Bool("run-once", false, "Trim the audit log once and exit")
	schedule = flag.String("schedule", "", "Cron schedule for sweeps (defaults to the configured sweep_schedule)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadOperatorConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Level(), observability.LogFormat(cfg.Observability.LogFormat), os.Stdout)
	ctx := context.Background()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	kv, err := kvstore.Open(ctx, cfg.KVStore(), metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open key-value store")
	}
	defer kv.Close()

	auditOpts, err := cfg.AuditOptions(ctx, metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure audit log")
	}
	auditLog := audit.NewLog(kv, auditOpts...)

	if *schedule == "" {
		*schedule = cfg.Audit.SweepSchedule
	}
	sweeper, err := audit.NewSweeper(auditLog, *schedule, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule audit sweeps")
	}

	if *runOnce {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		evicted := sweeper.RunOnce(runCtx)
		logger.WithField("evicted", evicted).Info("Audit sweep finished")
		return
	}

	sweeper.Start()
	logger.WithField("schedule", *schedule).WithField("retention", auditLog.Retention()).Info("Audit sweeper started")

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down audit sweeper...")

	// Stop the cron scheduler
	<-sweeper.Stop().Done()
	logger.Info("Audit sweeper stopped")
}
