package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinummonkey/controlplane/pkg/apperr"
	"github.com/platinummonkey/controlplane/pkg/kvstore"
	"github.com/platinummonkey/controlplane/pkg/kvstore/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGetUsageDefaultsToCurrentPeriod(t *testing.T) {
	records := NewRecords(kvstore.NewMemory()).WithClock(fixedClock(time.Date(2026, 5, 17, 8, 0, 0, 0, time.UTC)))

	u, err := records.GetUsage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	assert.Zero(t, u.AnalysesThisPeriod)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), u.PeriodStart)
}

func TestIncrementAnalysesRollsPeriod(t *testing.T) {
	kv := kvstore.NewMemory()
	now := time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)
	records := NewRecords(kv).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := records.IncrementAnalyses(ctx, "u1")
	require.NoError(t, err)
	u, err := records.IncrementAnalyses(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.AnalysesThisPeriod)

	now = time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	u, err = records.IncrementAnalyses(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.AnalysesThisPeriod)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), u.PeriodStart)
}

func TestSaveAndListAnalyses(t *testing.T) {
	records := NewRecords(kvstore.NewMemory())
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := records.SaveAnalysis(ctx, Analysis{UserID: "u1", Title: "older", CreatedAt: ts})
	require.NoError(t, err)
	saved, err := records.SaveAnalysis(ctx, Analysis{UserID: "u1", Title: "newer", CreatedAt: ts.Add(time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	_, err = records.SaveAnalysis(ctx, Analysis{UserID: "u2", Title: "other"})
	require.NoError(t, err)

	list, err := records.ListAnalyses(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Title)
	assert.Equal(t, "older", list[1].Title)

	_, err = records.SaveAnalysis(ctx, Analysis{Title: "orphan"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestDeleteUserCascades(t *testing.T) {
	kv := kvstore.NewMemory()
	records := NewRecords(kv)
	ctx := context.Background()

	_, err := records.IncrementAnalyses(ctx, "a")
	require.NoError(t, err)
	for _, owner := range []string{"a", "a", "a_b"} {
		_, err := records.SaveAnalysis(ctx, Analysis{UserID: owner, Title: "t"})
		require.NoError(t, err)
	}

	deleted, err := records.DeleteUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = kv.Get(ctx, UsageKey("a"))
	assert.True(t, errors.Is(err, kvstore.ErrNotFound))

	// "a_b" shares the analysis_a_ prefix but is owned by someone else
	remaining, err := records.ListAnalyses(ctx, "a_b")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestStoreFailuresAreClassified(t *testing.T) {
	kv := kvtest.NewFaulty().FailScans(AnalysisKeyPrefix).FailGets(UsageKeyPrefix)
	records := NewRecords(kv)
	ctx := context.Background()

	_, err := records.ListAnalyses(ctx, "u1")
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))

	_, err = records.DeleteUser(ctx, "u1")
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))

	_, err = records.GetUsage(ctx, "u1")
	assert.True(t, errors.Is(err, apperr.ErrStoreFailure))
}
