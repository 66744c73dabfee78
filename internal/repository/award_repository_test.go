package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/storefront-badges/internal/models"
)

func metCriteria() models.Criteria {
	return models.Criteria{
		"store_rating": {Current: 4.8, Required: 4.5, Comparator: ">=", Met: true},
	}
}

func TestAwardRepository_FindOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()

	first, created, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, start, end))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)
	assert.False(t, first.Active)
	assert.Nil(t, first.AwardedAt)

	second, created, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, start, end))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Same subject id, other type is a different natural key.
	other, created, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeCustomer, 1, start, end))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	var count int64
	require.NoError(t, db.Model(&models.Award{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAwardRepository_ActivateSetsAwardedAtOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()

	award, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, start, end))
	require.NoError(t, err)

	t1 := start.Add(48 * time.Hour)
	newly, err := repo.Activate(ctx, award.ID, metCriteria(), t1)
	require.NoError(t, err)
	assert.True(t, newly)

	newly, err = repo.Activate(ctx, award.ID, metCriteria(), t1.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, newly, "second activation must lose the awarded_at compare-and-set")

	got, err := repo.GetByID(ctx, award.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	require.NotNil(t, got.AwardedAt)
	assert.True(t, got.AwardedAt.Equal(t1))
	assert.True(t, got.CriteriaMap()["store_rating"].Met)
}

func TestAwardRepository_RegressionKeepsAwardedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()

	award, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, start, end))
	require.NoError(t, err)

	t1 := start.Add(24 * time.Hour)
	_, err = repo.Activate(ctx, award.ID, metCriteria(), t1)
	require.NoError(t, err)

	unmet := models.Criteria{"store_rating": {Current: 4.1, Required: 4.5, Comparator: ">=", Met: false}}
	require.NoError(t, repo.SaveEvaluation(ctx, award.ID, unmet, t1.Add(time.Hour)))

	got, err := repo.GetByID(ctx, award.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.AwardedAt)
	assert.True(t, got.AwardedAt.Equal(t1))
	assert.False(t, got.CriteriaMap()["store_rating"].Met)
}

func TestAwardRepository_ActivateUnknownID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)

	_, err := repo.Activate(context.Background(), 999, metCriteria(), time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAwardRepository_SweepExpiredOnlyClosedWindows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	curStart, curEnd := testWindow()
	prevStart, prevEnd := curStart.AddDate(0, 0, -7), curEnd.AddDate(0, 0, -7)
	now := curStart.Add(3 * 24 * time.Hour)

	prev, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, prevStart.AddDate(0, 0, -7), prevEnd.AddDate(0, 0, -7)))
	require.NoError(t, err)
	_, err = repo.Activate(ctx, prev.ID, metCriteria(), prevStart.AddDate(0, 0, -6))
	require.NoError(t, err)

	lastWeek, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, prevStart, prevEnd))
	require.NoError(t, err)
	_, err = repo.Activate(ctx, lastWeek.ID, metCriteria(), prevStart.Add(time.Hour))
	require.NoError(t, err)

	current, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, curStart, curEnd))
	require.NoError(t, err)
	_, err = repo.Activate(ctx, current.ID, metCriteria(), curStart.Add(time.Hour))
	require.NoError(t, err)

	n, err := repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the award two windows back has expired")

	got, err := repo.GetByID(ctx, prev.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.NotNil(t, got.AwardedAt, "sweep must not clear history")

	got, err = repo.GetByID(ctx, lastWeek.ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "last week is closed but still in its grace period")

	got, err = repo.GetByID(ctx, current.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	n, err = repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "sweeping again is a no-op")
}

func TestAwardRepository_GetLatestActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()

	award, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 7, start, end))
	require.NoError(t, err)

	_, err = repo.GetLatestActive(ctx, models.SubjectTypeStore, 7, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound, "pending award is not active")

	_, err = repo.Activate(ctx, award.ID, metCriteria(), start.Add(time.Hour))
	require.NoError(t, err)

	got, err := repo.GetLatestActive(ctx, models.SubjectTypeStore, 7, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, award.ID, got.ID)

	// Stale active flag past expiry, sweep has not run.
	_, err = repo.GetLatestActive(ctx, models.SubjectTypeStore, 7, award.ExpiresAt.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAwardRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()
	now := start.Add(time.Hour)

	for i := uint(1); i <= 5; i++ {
		award, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, i, start, end))
		require.NoError(t, err)
		if i%2 == 1 {
			_, err = repo.Activate(ctx, award.ID, metCriteria(), now)
			require.NoError(t, err)
		}
	}
	_, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeCustomer, 1, start, end))
	require.NoError(t, err)

	all, total, err := repo.List(ctx, AwardFilter{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Len(t, all, 6)

	page, total, err := repo.List(ctx, AwardFilter{SubjectType: models.SubjectTypeStore, Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, uint(3), page[0].SubjectID, "same window orders by id descending")
	assert.Equal(t, uint(2), page[1].SubjectID)

	active := true
	actives, total, err := repo.List(ctx, AwardFilter{Active: &active, Now: now, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, actives, 3)

	inactive := false
	inactives, total, err := repo.List(ctx, AwardFilter{Active: &inactive, Now: now, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, inactives, 3)

	expired, total, err := repo.List(ctx, AwardFilter{Active: &active, Now: end.Add(8 * 24 * time.Hour), Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, expired)
}

func TestAwardRepository_AcknowledgeCelebration(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()

	award, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeCustomer, 3, start, end))
	require.NoError(t, err)

	require.NoError(t, repo.AcknowledgeCelebration(ctx, award.ID))
	require.NoError(t, repo.AcknowledgeCelebration(ctx, award.ID))

	got, err := repo.GetByID(ctx, award.ID)
	require.NoError(t, err)
	assert.True(t, got.CelebrationAcknowledged)

	assert.ErrorIs(t, repo.AcknowledgeCelebration(ctx, 12345), ErrNotFound)
}

func TestAwardRepository_Counts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()
	start, end := testWindow()
	prevStart, prevEnd := start.AddDate(0, 0, -7), end.AddDate(0, 0, -7)
	now := start.Add(time.Hour)

	old, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, prevStart, prevEnd))
	require.NoError(t, err)
	_, err = repo.Activate(ctx, old.ID, metCriteria(), prevStart.Add(time.Hour))
	require.NoError(t, err)

	cur, _, err := repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 1, start, end))
	require.NoError(t, err)
	_, err = repo.Activate(ctx, cur.ID, metCriteria(), now)
	require.NoError(t, err)

	_, _, err = repo.FindOrCreate(ctx, newPendingAward(models.SubjectTypeStore, 2, start, end))
	require.NoError(t, err)

	counts, err := repo.Counts(ctx, models.SubjectTypeStore, now, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Total)
	assert.Equal(t, int64(2), counts.Active, "last week's award is still in its grace period")
	assert.Equal(t, int64(1), counts.NewThisWindow)

	counts, err = repo.Counts(ctx, models.SubjectTypeCustomer, now, start, end)
	require.NoError(t, err)
	assert.Equal(t, AwardCounts{}, *counts)
}
