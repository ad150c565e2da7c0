// Package usage stores per-user metering and cached analysis results. The
// admin delete path cascades into it so a removed account leaves no records.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
)

const (
	UsageKeyPrefix    = "user_usage_"
	AnalysisKeyPrefix = "analysis_"
)

// UsageKey returns the usage record key for a user
func UsageKey(userID string) string {
	return UsageKeyPrefix + userID
}

// AnalysisKey returns the key of one cached analysis
func AnalysisKey(userID, analysisID string) string {
	return AnalysisKeyPrefix + userID + "_" + analysisID
}

// Usage is the metering record for the current billing period
type Usage struct {
	UserID             string    `json:"userId"`
	AnalysesThisPeriod int       `json:"analysesThisPeriod"`
	PeriodStart        time.Time `json:"periodStart"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Analysis is a cached analysis result owned by one user
type Analysis struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Records reads and writes usage and analysis records
type Records struct {
	kv  kvstore.Store
	now func() time.Time
}

func NewRecords(kv kvstore.Store) *Records {
	return &Records{kv: kv, now: time.Now}
}

// WithClock overrides the time source
func (r *Records) WithClock(now func() time.Time) *Records {
	r.now = now
	return r
}

// GetUsage returns the user's usage record, or a zeroed record for the
// current month when none is stored.
func (r *Records) GetUsage(ctx context.Context, userID string) (Usage, error) {
	var u Usage
	err := kvstore.GetJSON(ctx, r.kv, UsageKey(userID), &u)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		now := r.now().UTC()
		return Usage{
			UserID:      userID,
			PeriodStart: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		}, nil
	case err != nil:
		return Usage{}, apperr.StoreFailure(err, "failed to load usage for %s", userID)
	}
	u.UserID = userID
	return u, nil
}

// IncrementAnalyses counts one analysis against the current period,
// starting a new period when the month has rolled over.
func (r *Records) IncrementAnalyses(ctx context.Context, userID string) (Usage, error) {
	u, err := r.GetUsage(ctx, userID)
	if err != nil {
		return Usage{}, err
	}

	now := r.now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if u.PeriodStart.Before(periodStart) {
		u.PeriodStart = periodStart
		u.AnalysesThisPeriod = 0
	}
	u.AnalysesThisPeriod++
	u.UpdatedAt = now

	if err := kvstore.SetJSON(ctx, r.kv, UsageKey(userID), u); err != nil {
		return Usage{}, apperr.StoreFailure(err, "failed to save usage for %s", userID)
	}
	return u, nil
}

// SaveAnalysis stores a result for its owner, assigning an ID and
// timestamp when they are unset.
func (r *Records) SaveAnalysis(ctx context.Context, a Analysis) (Analysis, error) {
	if a.UserID == "" {
		return Analysis{}, apperr.Validation("analysis owner is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}

	if err := kvstore.SetJSON(ctx, r.kv, AnalysisKey(a.UserID, a.ID), a); err != nil {
		return Analysis{}, apperr.StoreFailure(err, "failed to save analysis")
	}
	return a, nil
}

// ListAnalyses returns the user's analyses, newest first. Records under the
// user's key prefix that belong to a different user are excluded.
func (r *Records) ListAnalyses(ctx context.Context, userID string) ([]Analysis, error) {
	items, err := r.owned(ctx, userID)
	if err != nil {
		return nil, err
	}

	analyses := make([]Analysis, 0, len(items))
	for _, item := range items {
		analyses = append(analyses, item.analysis)
	}
	sort.Slice(analyses, func(i, j int) bool {
		if !analyses[i].CreatedAt.Equal(analyses[j].CreatedAt) {
			return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
		}
		return analyses[i].ID > analyses[j].ID
	})
	return analyses, nil
}

// DeleteUser removes the usage record and every analysis owned by userID.
// It returns the number of analyses deleted.
func (r *Records) DeleteUser(ctx context.Context, userID string) (int, error) {
	items, err := r.owned(ctx, userID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, item := range items {
		if err := r.kv.Delete(ctx, item.key); err != nil {
			return deleted, apperr.StoreFailure(err, "failed to delete analysis %s", item.key)
		}
		deleted++
	}
	if err := r.kv.Delete(ctx, UsageKey(userID)); err != nil {
		return deleted, apperr.StoreFailure(err, "failed to delete usage for %s", userID)
	}
	return deleted, nil
}

type ownedAnalysis struct {
	key      string
	analysis Analysis
}

// owned scans analysis_{userID}_ and keeps records whose stored owner is
// userID. The prefix alone is ambiguous: user "a" scans into "a_b"'s records.
func (r *Records) owned(ctx context.Context, userID string) ([]ownedAnalysis, error) {
	items, err := r.kv.ScanPrefix(ctx, AnalysisKeyPrefix+userID+"_")
	if err != nil {
		return nil, apperr.StoreFailure(err, "failed to scan analyses for %s", userID)
	}

	var out []ownedAnalysis
	for _, item := range items {
		var a Analysis
		if err := json.Unmarshal(item.Value, &a); err != nil {
			continue
		}
		if a.UserID != userID {
			continue
		}
		out = append(out, ownedAnalysis{key: item.Key, analysis: a})
	}
	return out, nil
}
