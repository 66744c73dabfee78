package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/storefront-badges/internal/models"
)

// AwardRepository handles award-related database operations.
type AwardRepository struct {
	db *DB
}

// NewAwardRepository creates a new award repository.
func NewAwardRepository(db *DB) *AwardRepository {
	return &AwardRepository{db: db}
}

// AwardFilter narrows an award listing.
type AwardFilter struct {
	SubjectType string
	Active      *bool     // nil means any; evaluated with the read-time rule against Now
	Now         time.Time // required when Active is set
	Offset      int
	Limit       int
}

// AwardCounts summarises awards for one subject type.
type AwardCounts struct {
	Active        int64 `json:"active"`
	Total         int64 `json:"total"`
	NewThisWindow int64 `json:"new_this_window"`
}

// FindOrCreate returns the award for the natural key of candidate, inserting candidate
// first when none exists. Concurrent callers converge on the same row.
func (r *AwardRepository) FindOrCreate(ctx context.Context, candidate *models.Award) (*models.Award, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "subject_type"}, {Name: "subject_id"}, {Name: "window_start"}, {Name: "window_end"},
			},
			DoNothing: true,
		}).
		Create(candidate)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create award: %w", result.Error)
	}
	created := result.RowsAffected > 0

	var award models.Award
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND window_start = ? AND window_end = ?",
			candidate.SubjectType, candidate.SubjectID, candidate.WindowStart, candidate.WindowEnd).
		First(&award).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to load award: %w", notFound(err))
	}
	return &award, created, nil
}

// GetByID retrieves an award by its ID.
func (r *AwardRepository) GetByID(ctx context.Context, id uint) (*models.Award, error) {
	var award models.Award
	if err := r.db.WithContext(ctx).First(&award, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &award, nil
}

// SaveEvaluation stores a non-qualifying evaluation: criteria are replaced and the award
// is left (or put back) inactive. awarded_at is never touched.
func (r *AwardRepository) SaveEvaluation(ctx context.Context, id uint, criteria models.Criteria, evaluatedAt time.Time) error {
	award := models.Award{}
	award.SetCriteria(criteria)

	err := r.db.WithContext(ctx).Model(&models.Award{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"criteria":          award.Criteria,
			"active":            false,
			"last_evaluated_at": evaluatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

// Activate stores a qualifying evaluation and sets awarded_at when it is still null.
// It reports whether this call performed the one-time awarded_at transition.
func (r *AwardRepository) Activate(ctx context.Context, id uint, criteria models.Criteria, now time.Time) (bool, error) {
	award := models.Award{}
	award.SetCriteria(criteria)

	var newlyAwarded bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Award{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"criteria":          award.Criteria,
				"active":            true,
				"last_evaluated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		cas := tx.Model(&models.Award{}).
			Where("id = ? AND awarded_at IS NULL", id).
			Update("awarded_at", now)
		if cas.Error != nil {
			return cas.Error
		}
		newlyAwarded = cas.RowsAffected == 1
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to activate award: %w", err)
	}
	return newlyAwarded, nil
}

// SweepExpired deactivates active awards whose expiry has passed and whose window is
// closed. It returns the number of awards deactivated.
func (r *AwardRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Award{}).
		Where("active = ? AND expires_at <= ? AND window_end < ?", true, now, now).
		Update("active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired awards: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetLatestActive returns the most recent award for the subject that is active and not
// yet expired at now.
func (r *AwardRepository) GetLatestActive(ctx context.Context, subjectType string, subjectID uint, now time.Time) (*models.Award, error) {
	var award models.Award
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Where("active = ? AND expires_at > ?", true, now).
		Order("window_start DESC").
		First(&award).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &award, nil
}

// List returns a page of awards matching filter and the total number of matches.
func (r *AwardRepository) List(ctx context.Context, filter AwardFilter) ([]models.Award, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Award{})
	if filter.SubjectType != "" {
		query = query.Where("subject_type = ?", filter.SubjectType)
	}
	if filter.Active != nil {
		if *filter.Active {
			query = query.Where("active = ? AND expires_at > ?", true, filter.Now)
		} else {
			query = query.Where("(active = ? OR expires_at <= ?)", false, filter.Now)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count awards: %w", err)
	}

	var awards []models.Award
	err := query.
		Order("window_start DESC").
		Order("id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&awards).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list awards: %w", err)
	}
	return awards, total, nil
}

// AcknowledgeCelebration marks the award's celebration as seen. Repeated calls are no-ops.
func (r *AwardRepository) AcknowledgeCelebration(ctx context.Context, id uint) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Model(&models.Award{}).
		Where("id = ? AND celebration_acknowledged = ?", id, false).
		Update("celebration_acknowledged", true).Error
	if err != nil {
		return fmt.Errorf("failed to acknowledge celebration: %w", err)
	}
	return nil
}

// Counts returns award counts for a subject type. windowStart and windowEnd bound the
// awarded_at range counted as new.
func (r *AwardRepository) Counts(ctx context.Context, subjectType string, now, windowStart, windowEnd time.Time) (*AwardCounts, error) {
	var counts AwardCounts
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Award{}).Where("subject_type = ?", subjectType)
	}

	if err := base().Count(&counts.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count awards: %w", err)
	}
	if err := base().Where("active = ? AND expires_at > ?", true, now).Count(&counts.Active).Error; err != nil {
		return nil, fmt.Errorf("failed to count active awards: %w", err)
	}
	err := base().
		Where("awarded_at IS NOT NULL AND awarded_at >= ? AND awarded_at <= ?", windowStart, windowEnd).
		Count(&counts.NewThisWindow).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count new awards: %w", err)
	}
	return &counts, nil
}
