// Package events records deduplicated storefront activity.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/storefront-badges/internal/clock"
	prommetrics "github.com/aimd54/storefront-badges/internal/metrics"
	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/repository"
	"github.com/aimd54/storefront-badges/internal/service/badges"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

// EventStore interface for the append-only activity log.
type EventStore interface {
	Insert(ctx context.Context, event *models.ActivityEvent) (bool, error)
}

// SubjectRepository interface for validating event participants.
type SubjectRepository interface {
	Exists(ctx context.Context, subjectType string, id uint) (bool, error)
	GetStore(ctx context.Context, id uint) (*models.Store, error)
}

// Input describes one visit. A zero OccurredAt means now.
type Input struct {
	SubjectID  uint
	ActorID    uint
	OccurredAt time.Time
	IPAddress  string
	UserAgent  string
}

// Result is the outcome of RecordEvent. A duplicate is still a successful call.
type Result struct {
	Recorded   bool   `json:"recorded"`
	Duplicate  bool   `json:"duplicate"`
	DateBucket string `json:"date_bucket"`
}

// Recorder appends activity events, at most one per subject, actor and calendar day.
type Recorder struct {
	events     EventStore
	subjects   SubjectRepository
	clock      clock.Clock
	defaultLoc *time.Location
	log        *logger.Logger
}

// NewRecorder creates a new recorder. Date buckets use the store's timezone, or
// defaultLoc when the store has none.
func NewRecorder(events *repository.EventRepository, subjects *repository.SubjectRepository, clk clock.Clock, defaultLoc *time.Location, log *logger.Logger) *Recorder {
	return NewRecorderWithInterfaces(events, subjects, clk, defaultLoc, log)
}

// NewRecorderWithInterfaces creates a new recorder with interface dependencies (useful for testing).
func NewRecorderWithInterfaces(events EventStore, subjects SubjectRepository, clk clock.Clock, defaultLoc *time.Location, log *logger.Logger) *Recorder {
	if clk == nil {
		clk = clock.System{}
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Recorder{
		events:     events,
		subjects:   subjects,
		clock:      clk,
		defaultLoc: defaultLoc,
		log:        log,
	}
}

// RecordEvent stores the visit unless one already exists for the same subject, actor
// and local calendar day. Uniqueness is enforced by the store, so concurrent calls
// for the same key yield exactly one row and no errors.
func (r *Recorder) RecordEvent(ctx context.Context, in Input) (*Result, error) {
	store, err := r.subjects.GetStore(ctx, in.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		prommetrics.RecordActivityEvent("rejected")
		return nil, fmt.Errorf("%w: store %d", badges.ErrSubjectNotFound, in.SubjectID)
	}
	if err != nil {
		prommetrics.RecordActivityEvent("error")
		return nil, badges.NewStorageError("load store", err)
	}

	ok, err := r.subjects.Exists(ctx, models.SubjectTypeCustomer, in.ActorID)
	if err != nil {
		prommetrics.RecordActivityEvent("error")
		return nil, badges.NewStorageError("check actor", err)
	}
	if !ok {
		prommetrics.RecordActivityEvent("rejected")
		return nil, fmt.Errorf("%w: customer %d", badges.ErrSubjectNotFound, in.ActorID)
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = r.clock.Now()
	}
	bucket := DateBucket(occurredAt, store.Location(r.defaultLoc))

	event := &models.ActivityEvent{
		SubjectID:  in.SubjectID,
		ActorID:    in.ActorID,
		DateBucket: bucket,
		OccurredAt: occurredAt.UTC(),
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
	}

	inserted, err := r.events.Insert(ctx, event)
	if err != nil {
		prommetrics.RecordActivityEvent("error")
		r.log.Error().
			Err(err).
			Uint("subject_id", in.SubjectID).
			Uint("actor_id", in.ActorID).
			Msg("Failed to record activity event")
		return nil, badges.NewStorageError("insert activity event", err)
	}

	if inserted {
		prommetrics.RecordActivityEvent("recorded")
	} else {
		prommetrics.RecordActivityEvent("duplicate")
		r.log.Debug().
			Uint("subject_id", in.SubjectID).
			Uint("actor_id", in.ActorID).
			Str("date_bucket", bucket).
			Msg("Duplicate activity event ignored")
	}

	return &Result{Recorded: true, Duplicate: !inserted, DateBucket: bucket}, nil
}

// DateBucket returns the calendar day of t in loc as YYYY-MM-DD.
func DateBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(models.DateBucketLayout)
}
