package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper runs Trim on a cron schedule so retention holds even when Record's
// own trim loses a race with a concurrent writer.
type Sweeper struct {
	log     *Log
	logger  logrus.FieldLogger
	cron    *cron.Cron
	timeout time.Duration
}

// NewSweeper schedules Trim on log. schedule uses the robfig/cron syntax,
// including descriptors such as "@every 5m".
func NewSweeper(log *Log, schedule string, logger logrus.FieldLogger) (*Sweeper, error) {
	s := &Sweeper{
		log:     log,
		logger:  logger,
		cron:    cron.New(),
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(s.logger, "audit sweep")
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce trims the log immediately and returns the number of evicted entries
func (s *Sweeper) RunOnce(ctx context.Context) int {
	start := time.Now()
	evicted, err := s.log.Trim(ctx)
	entry := s.logger.WithFields(logrus.Fields{
		"evicted":  evicted,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("Audit sweep failed")
		return evicted
	}
	if evicted > 0 {
		entry.Info("Audit sweep evicted entries")
	} else {
		entry.Debug("Audit sweep complete")
	}
	return evicted
}

// Start begins running the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running
// sweep has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
