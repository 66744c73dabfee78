package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/storefront-badges/internal/models"
)

func TestMetricSourceRepository_AverageRating(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetricSourceRepository(db)
	ctx := context.Background()

	agg, err := repo.AverageRating(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.Count)
	assert.Equal(t, 0.0, agg.Average)

	for _, rating := range []int{5, 5, 4, 5, 5} {
		require.NoError(t, db.Create(&models.Review{StoreID: 1, CustomerID: 9, ProductID: 1, Rating: rating}).Error)
	}
	require.NoError(t, db.Create(&models.Review{StoreID: 2, CustomerID: 9, ProductID: 2, Rating: 1}).Error)

	agg, err = repo.AverageRating(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), agg.Count)
	assert.InDelta(t, 4.8, agg.Average, 0.0001)
}

func TestMetricSourceRepository_WindowedCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetricSourceRepository(db)
	events := NewEventRepository(db)
	ctx := context.Background()
	start, end := testWindow()

	// Three customers view store 1 inside the window, one before it.
	for actor := uint(1); actor <= 3; actor++ {
		_, err := events.Insert(ctx, newEvent(1, actor, start.Add(time.Duration(actor)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := events.Insert(ctx, newEvent(1, 4, start.Add(-time.Hour)))
	require.NoError(t, err)
	// Customer 1 also visits store 2 twice on different days.
	_, err = events.Insert(ctx, newEvent(2, 1, start.Add(26*time.Hour)))
	require.NoError(t, err)
	_, err = events.Insert(ctx, newEvent(2, 1, start.Add(50*time.Hour)))
	require.NoError(t, err)

	views, err := repo.CountStoreViews(ctx, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), views)

	visits, err := repo.CountActorVisits(ctx, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(2), visits, "distinct stores, not events")

	engagement := []models.EngagementAction{
		{SubjectType: models.SubjectTypeStore, SubjectID: 1, Kind: models.EngagementKindBlogView, OccurredAt: start.Add(time.Hour)},
		{SubjectType: models.SubjectTypeStore, SubjectID: 1, Kind: models.EngagementKindBlogView, OccurredAt: end.Add(-time.Hour)},
		{SubjectType: models.SubjectTypeStore, SubjectID: 1, Kind: models.EngagementKindLike, OccurredAt: start.Add(time.Hour)},
		{SubjectType: models.SubjectTypeStore, SubjectID: 1, Kind: models.EngagementKindBlogView, OccurredAt: end.Add(time.Hour)},
		{SubjectType: models.SubjectTypeCustomer, SubjectID: 1, Kind: models.EngagementKindComment, OccurredAt: start.Add(time.Hour)},
	}
	require.NoError(t, db.Create(&engagement).Error)

	blog, err := repo.CountEngagement(ctx, models.SubjectTypeStore, 1, models.EngagementKindBlogView, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(2), blog)

	allKinds, err := repo.CountEngagement(ctx, models.SubjectTypeStore, 1, "", start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), allKinds)

	reviews := []models.Review{
		{StoreID: 1, CustomerID: 1, ProductID: 1, Rating: 5, CreatedAt: start.Add(time.Hour)},
		{StoreID: 2, CustomerID: 1, ProductID: 2, Rating: 4, CreatedAt: start.Add(2 * time.Hour)},
		{StoreID: 2, CustomerID: 1, ProductID: 3, Rating: 4, CreatedAt: start.Add(-2 * time.Hour)},
	}
	require.NoError(t, db.Create(&reviews).Error)

	written, err := repo.CountReviewsWritten(ctx, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)
}

// newMockDB wires sqlmock behind the gorm postgres dialector.
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		sqlDB.Close()
	})

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("failed to open gorm over sqlmock: %v", err)
	}
	return &DB{gdb}, mock
}

func TestMetricSourceRepository_PropagatesDriverErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMetricSourceRepository(db)
	start, end := testWindow()

	driverErr := errors.New("connection reset by peer")
	mock.ExpectQuery(`SELECT count\(\*\) FROM "activity_events"`).WillReturnError(driverErr)

	_, err := repo.CountStoreViews(context.Background(), 1, start, end)
	require.Error(t, err)
	assert.ErrorIs(t, err, driverErr)
	assert.Contains(t, err.Error(), "failed to count views for store 1")
}

func TestSubjectRepository_PropagatesDriverErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubjectRepository(db)

	driverErr := errors.New("too many connections")
	mock.ExpectQuery(`SELECT count\(\*\) FROM "stores"`).WillReturnError(driverErr)

	_, err := repo.Exists(context.Background(), models.SubjectTypeStore, 1)
	assert.ErrorIs(t, err, driverErr)
}
