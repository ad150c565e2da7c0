package audit

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// evictionConcurrency bounds parallel deletes during a trim
const evictionConcurrency = 16

// Log is the size-bounded record of administrative actions
type Log struct {
	kv        kvstore.Store
	retention int
	archiver  Archiver
	metrics   *observability.Metrics
	now       func() time.Time

	entropyMu sync.Mutex
	entropy   io.Reader
}

// Option configures a Log
type Option func(*Log)

// WithRetention sets how many entries survive a trim
func WithRetention(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.retention = n
		}
	}
}

// WithArchiver hands evicted entries to a before they are deleted.
// A nil archiver disables archiving.
func WithArchiver(a Archiver) Option {
	return func(l *Log) {
		l.archiver = a
	}
}

// WithMetrics records write, eviction and archive counters
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Log) {
		l.metrics = m
	}
}

// WithClock overrides the time source for entry timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog creates an audit log over kv
func NewLog(kv kvstore.Store, opts ...Option) *Log {
	l := &Log{
		kv:        kv,
		retention: DefaultRetention,
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Retention returns the configured cap
func (l *Log) Retention() int {
	return l.retention
}

// Record appends an entry and trims the log. It never fails the caller:
// write and trim failures are logged and counted.
func (l *Log) Record(ctx context.Context, adminID string, action Action, targetID string, details map[string]interface{}) {
	now := l.now().UTC()
	entry := Entry{
		ID:        l.newID(now),
		AdminID:   adminID,
		Action:    action,
		TargetID:  targetID,
		Details:   details,
		CreatedAt: now,
	}

	logger := observability.FromContext(ctx).WithFields(logrus.Fields{
		"admin_id":  adminID,
		"action":    action,
		"target_id": targetID,
	})

	if err := kvstore.SetJSON(ctx, l.kv, Key(entry.ID), entry); err != nil {
		logger.WithError(err).Error("Failed to write audit entry")
		l.countRecord(action, "error")
		return
	}
	l.countRecord(action, "ok")

	if _, err := l.Trim(ctx); err != nil {
		logger.WithError(err).Warn("Audit retention trim failed")
	}
}

// Trim deletes every entry beyond the newest retention entries and returns
// how many were deleted. Concurrent trims may both delete the same entries;
// deletes are idempotent so the log still converges to the cap.
func (l *Log) Trim(ctx context.Context) (int, error) {
	entries, err := l.scan(ctx)
	if err != nil {
		return 0, err
	}
	if l.metrics != nil {
		retained := len(entries)
		if retained > l.retention {
			retained = l.retention
		}
		l.metrics.AuditEntries.Set(float64(retained))
	}
	if len(entries) <= l.retention {
		return 0, nil
	}

	evicted := entries[l.retention:]

	if l.archiver != nil {
		if err := l.archiver.Archive(ctx, evicted); err != nil {
			observability.FromContext(ctx).WithError(err).WithField("entries", len(evicted)).Error("Failed to archive evicted audit entries")
			l.countArchive("error")
		} else {
			l.countArchive("ok")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evictionConcurrency)
	var (
		mu      sync.Mutex
		deleted int
	)
	for _, e := range evicted {
		key := Key(e.ID)
		g.Go(func() error {
			if err := l.kv.Delete(gctx, key); err != nil {
				return fmt.Errorf("failed to evict %s: %w", key, err)
			}
			mu.Lock()
			deleted++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	if l.metrics != nil {
		l.metrics.AuditEvictedTotal.Add(float64(deleted))
	}
	if err != nil {
		return deleted, apperr.StoreFailure(err, "audit trim incomplete")
	}
	return deleted, nil
}

// List returns up to limit entries, newest first. A non-positive limit
// returns every entry.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Count returns the number of stored entries
func (l *Log) Count(ctx context.Context) (int, error) {
	items, err := l.kv.ScanPrefix(ctx, KeyPrefix)
	if err != nil {
		return 0, apperr.StoreFailure(err, "failed to scan audit log")
	}
	return len(items), nil
}

// scan returns every entry, newest first
func (l *Log) scan(ctx context.Context) ([]Entry, error) {
	items, err := l.kv.ScanPrefix(ctx, KeyPrefix)
	if err != nil {
		return nil, apperr.StoreFailure(err, "failed to scan audit log")
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, decodeEntry(item.Key, item.Value))
	}
	sort.Slice(entries, func(i, j int) bool {
		return newerFirst(entries[i], entries[j])
	})
	return entries, nil
}

func (l *Log) newID(now time.Time) string {
	l.entropyMu.Lock()
	defer l.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
}

func (l *Log) countRecord(action Action, status string) {
	if l.metrics != nil {
		l.metrics.AuditRecordsTotal.WithLabelValues(string(action), status).Inc()
	}
}

func (l *Log) countArchive(status string) {
	if l.metrics != nil {
		l.metrics.AuditArchivedTotal.WithLabelValues(status).Inc()
	}
}
