package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/aimd54/storefront-badges/internal/models"
)

// EventRepository appends to the activity event log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert stores the event unless one already exists for its (subject, actor, date bucket).
// It reports whether a row was written; a duplicate is not an error.
func (r *EventRepository) Insert(ctx context.Context, event *models.ActivityEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}, {Name: "actor_id"}, {Name: "date_bucket"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert activity event: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CountForPair returns how many events exist for a subject/actor pair.
func (r *EventRepository) CountForPair(ctx context.Context, subjectID, actorID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ActivityEvent{}).
		Where("subject_id = ? AND actor_id = ?", subjectID, actorID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count activity events: %w", err)
	}
	return count, nil
}
