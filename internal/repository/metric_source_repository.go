package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/storefront-badges/internal/models"
)

// MetricSourceRepository runs the read-only aggregate queries the criteria are
// measured with. Windowed counts are inclusive of both bounds.
type MetricSourceRepository struct {
	db *DB
}

// NewMetricSourceRepository creates a new metric source repository.
func NewMetricSourceRepository(db *DB) *MetricSourceRepository {
	return &MetricSourceRepository{db: db}
}

// RatingAggregate is the all-time rating snapshot for a store.
type RatingAggregate struct {
	Average float64
	Count   int64
}

// AverageRating returns the store's all-time average review rating.
func (r *MetricSourceRepository) AverageRating(ctx context.Context, storeID uint) (*RatingAggregate, error) {
	var agg RatingAggregate
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("store_id = ?", storeID).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings for store %d: %w", storeID, err)
	}
	return &agg, nil
}

// CountStoreViews counts activity events recorded against the store in [start, end].
func (r *MetricSourceRepository) CountStoreViews(ctx context.Context, storeID uint, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ActivityEvent{}).
		Where("subject_id = ? AND occurred_at >= ? AND occurred_at <= ?", storeID, start, end).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count views for store %d: %w", storeID, err)
	}
	return count, nil
}

// CountActorVisits counts distinct stores the customer visited in [start, end].
func (r *MetricSourceRepository) CountActorVisits(ctx context.Context, customerID uint, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ActivityEvent{}).
		Where("actor_id = ? AND occurred_at >= ? AND occurred_at <= ?", customerID, start, end).
		Distinct("subject_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count visits for customer %d: %w", customerID, err)
	}
	return count, nil
}

// CountEngagement counts engagement actions for the subject in [start, end]. An empty
// kind counts every kind.
func (r *MetricSourceRepository) CountEngagement(ctx context.Context, subjectType string, subjectID uint, kind string, start, end time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EngagementAction{}).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Where("occurred_at >= ? AND occurred_at <= ?", start, end)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count engagement for %s %d: %w", subjectType, subjectID, err)
	}
	return count, nil
}

// CountReviewsWritten counts reviews the customer wrote in [start, end].
func (r *MetricSourceRepository) CountReviewsWritten(ctx context.Context, customerID uint, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("customer_id = ? AND created_at >= ? AND created_at <= ?", customerID, start, end).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews for customer %d: %w", customerID, err)
	}
	return count, nil
}
