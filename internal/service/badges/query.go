package badges

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/repository"
)

// Pagination bounds for ListAwards.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AwardFilter selects awards for administrative listing.
type AwardFilter struct {
	SubjectType string
	ActiveOnly  *bool
	Page        int
	PageSize    int
}

// AwardPage is one page of ListAwards.
type AwardPage struct {
	Awards   []models.Award `json:"awards"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// Stats holds award counts per subject type for the current window.
type Stats struct {
	Window        Window                             `json:"window"`
	BySubjectType map[string]*repository.AwardCounts `json:"by_subject_type"`
}

// GetActiveAward returns the subject's award if it is active and not expired right now.
// The expiry check does not depend on the sweeper having run.
func (s *Service) GetActiveAward(ctx context.Context, subjectType string, subjectID uint) (*models.Award, error) {
	if !models.IsValidSubjectType(subjectType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubjectType, subjectType)
	}

	now := s.Now()
	award, err := s.awards.GetLatestActive(ctx, subjectType, subjectID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveAward
	}
	if err != nil {
		return nil, NewStorageError("get active award", err)
	}

	// Guard against a repository that only checks the stored flag.
	if !award.IsCurrentlyActive(now) {
		return nil, ErrNoActiveAward
	}
	return award, nil
}

// ListAwards returns a page of awards, newest window first. Page sizes outside
// 1..MaxPageSize are clamped.
func (s *Service) ListAwards(ctx context.Context, filter AwardFilter) (*AwardPage, error) {
	if filter.SubjectType != "" && !models.IsValidSubjectType(filter.SubjectType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubjectType, filter.SubjectType)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	awards, total, err := s.awards.List(ctx, repository.AwardFilter{
		SubjectType: filter.SubjectType,
		Active:      filter.ActiveOnly,
		Now:         s.Now(),
		Offset:      (page - 1) * size,
		Limit:       size,
	})
	if err != nil {
		return nil, NewStorageError("list awards", err)
	}
	if awards == nil {
		awards = []models.Award{}
	}

	return &AwardPage{Awards: awards, Total: total, Page: page, PageSize: size}, nil
}

// AcknowledgeCelebration records that the subject has seen its award celebration.
// Repeated calls succeed without further effect.
func (s *Service) AcknowledgeCelebration(ctx context.Context, awardID uint) error {
	err := s.awards.AcknowledgeCelebration(ctx, awardID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrAwardNotFound, awardID)
	}
	if err != nil {
		return NewStorageError("acknowledge celebration", err)
	}
	return nil
}

// Stats returns active, total and new-this-window counts for every subject type.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.Now()
	window := s.windows.CurrentWindow(now)

	stats := &Stats{
		Window:        window,
		BySubjectType: make(map[string]*repository.AwardCounts, len(models.SubjectTypes)),
	}
	for _, subjectType := range models.SubjectTypes {
		counts, err := s.awards.Counts(ctx, subjectType, now, window.Start, window.End)
		if err != nil {
			return nil, NewStorageError("award stats", err)
		}
		stats.BySubjectType[subjectType] = counts
	}
	return stats, nil
}
