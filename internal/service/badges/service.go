// Package badges provides the weekly award lifecycle: evaluation, activation,
// expiry and the read path.
package badges

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aimd54/storefront-badges/internal/clock"
	prommetrics "github.com/aimd54/storefront-badges/internal/metrics"
	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/notify"
	"github.com/aimd54/storefront-badges/internal/repository"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

// AwardRepository interface for award persistence.
type AwardRepository interface {
	FindOrCreate(ctx context.Context, candidate *models.Award) (*models.Award, bool, error)
	GetByID(ctx context.Context, id uint) (*models.Award, error)
	SaveEvaluation(ctx context.Context, id uint, criteria models.Criteria, evaluatedAt time.Time) error
	Activate(ctx context.Context, id uint, criteria models.Criteria, now time.Time) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	GetLatestActive(ctx context.Context, subjectType string, subjectID uint, now time.Time) (*models.Award, error)
	List(ctx context.Context, filter repository.AwardFilter) ([]models.Award, int64, error)
	AcknowledgeCelebration(ctx context.Context, id uint) error
	Counts(ctx context.Context, subjectType string, now, windowStart, windowEnd time.Time) (*repository.AwardCounts, error)
}

// SubjectRepository interface for subject lookups.
type SubjectRepository interface {
	Exists(ctx context.Context, subjectType string, id uint) (bool, error)
	ListIDs(ctx context.Context, subjectType string) ([]uint, error)
}

// Notifier is told once when an award first activates in its window.
type Notifier interface {
	NotifyAwarded(ctx context.Context, award *models.Award) error
}

// Locker serialises evaluations of one subject across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// EvaluationResult is the outcome of EvaluateSubject.
type EvaluationResult struct {
	Award        *models.Award `json:"award"`
	NewlyAwarded bool          `json:"is_newly_awarded"`
}

// BatchResult summarises EvaluateAll.
type BatchResult struct {
	Evaluated int           `json:"evaluated"`
	Awarded   int           `json:"newly_awarded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Service handles award evaluation and lifecycle.
type Service struct {
	awards      AwardRepository
	subjects    SubjectRepository
	evaluator   *Evaluator
	windows     *WindowCalculator
	notifier    Notifier
	locker      Locker
	clock       clock.Clock
	concurrency int
	log         *logger.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithNotifier sets the award notification sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLocker sets the per-subject lease provider.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithConcurrency bounds parallel evaluations in EvaluateAll.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a new award service.
func NewService(
	awardRepo *repository.AwardRepository,
	subjectRepo *repository.SubjectRepository,
	evaluator *Evaluator,
	windows *WindowCalculator,
	log *logger.Logger,
	opts ...Option,
) *Service {
	return NewServiceWithInterfaces(awardRepo, subjectRepo, evaluator, windows, log, opts...)
}

// NewServiceWithInterfaces creates a new award service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	awardRepo AwardRepository,
	subjectRepo SubjectRepository,
	evaluator *Evaluator,
	windows *WindowCalculator,
	log *logger.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		awards:      awardRepo,
		subjects:    subjectRepo,
		evaluator:   evaluator,
		windows:     windows,
		clock:       clock.System{},
		concurrency: 1,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current instant at millisecond precision.
func (s *Service) Now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

// CurrentWindow returns the scoring week containing the current instant.
func (s *Service) CurrentWindow() Window {
	return s.windows.CurrentWindow(s.Now())
}

// notifyTimeout bounds delivery of one award notification.
const notifyTimeout = 10 * time.Second

// LockKey returns the lease key for a subject.
func LockKey(subjectType string, subjectID uint) string {
	return fmt.Sprintf("badges:lock:%s:%d", subjectType, subjectID)
}

// EvaluateSubject re-scores the subject for the current window and applies the result
// to its award. The award is newly awarded only if this call set awarded_at.
func (s *Service) EvaluateSubject(ctx context.Context, subjectType string, subjectID uint) (*EvaluationResult, error) {
	started := time.Now()
	result, err := s.evaluateSubject(ctx, subjectType, subjectID)

	outcome := "pending"
	switch {
	case err != nil:
		outcome = "error"
	case result.Award.Active:
		outcome = "active"
	}
	if models.IsValidSubjectType(subjectType) {
		prommetrics.RecordEvaluation(subjectType, outcome, time.Since(started))
	}

	return result, err
}

func (s *Service) evaluateSubject(ctx context.Context, subjectType string, subjectID uint) (*EvaluationResult, error) {
	if !models.IsValidSubjectType(subjectType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubjectType, subjectType)
	}

	exists, err := s.subjects.Exists(ctx, subjectType, subjectID)
	if err != nil {
		return nil, NewStorageError("check subject", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s %d", ErrSubjectNotFound, subjectType, subjectID)
	}

	unlock := s.lock(ctx, subjectType, subjectID)
	defer unlock()

	// One snapshot for window, expiry and awarded_at.
	now := s.Now()
	window := s.windows.CurrentWindow(now)
	if !window.Contains(now) {
		return nil, fmt.Errorf("computed window %s..%s does not contain %s",
			window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	candidate := &models.Award{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		ExpiresAt:   s.windows.ExpiresAt(window),
	}
	candidate.SetCriteria(s.evaluator.InitialCriteria(subjectType))

	award, created, err := s.awards.FindOrCreate(ctx, candidate)
	if err != nil {
		return nil, NewStorageError("load award", err)
	}
	if created {
		s.log.Debug().
			Str("subject_type", subjectType).
			Uint("subject_id", subjectID).
			Time("window_start", window.Start).
			Msg("Created pending award")
	}

	criteria := s.evaluator.Evaluate(ctx, subjectType, subjectID, window)

	newlyAwarded := false
	if criteria.AllMet() {
		newlyAwarded, err = s.awards.Activate(ctx, award.ID, criteria, now)
		if err != nil {
			return nil, NewStorageError("activate award", err)
		}
		if !newlyAwarded && !award.WasEverAwarded() {
			s.log.Debug().
				Err(ErrConcurrentAwardConflict).
				Str("subject_type", subjectType).
				Uint("subject_id", subjectID).
				Msg("Award activation lost to a concurrent evaluation")
		}
	} else {
		if err := s.awards.SaveEvaluation(ctx, award.ID, criteria, now); err != nil {
			return nil, NewStorageError("save evaluation", err)
		}
	}

	award, err = s.awards.GetByID(ctx, award.ID)
	if err != nil {
		return nil, NewStorageError("reload award", err)
	}

	if newlyAwarded {
		prommetrics.RecordAwardActivated(subjectType)
		s.log.Info().
			Str("subject_type", subjectType).
			Uint("subject_id", subjectID).
			Uint("award_id", award.ID).
			Msg("Award activated")
		s.notify(ctx, award)
	}

	return &EvaluationResult{Award: award, NewlyAwarded: newlyAwarded}, nil
}

// lock takes the per-subject lease. Failing to get it is logged and the evaluation
// proceeds; the awarded_at compare-and-set still guarantees a single notification.
func (s *Service) lock(ctx context.Context, subjectType string, subjectID uint) func() {
	if s.locker == nil {
		return func() {}
	}

	unlock, err := s.locker.Lock(ctx, LockKey(subjectType, subjectID))
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		prommetrics.RecordLockContention(reason)
		s.log.Warn().
			Err(err).
			Str("subject_type", subjectType).
			Uint("subject_id", subjectID).
			Msg("Evaluating without subject lease")
		return func() {}
	}
	return unlock
}

func (s *Service) notify(ctx context.Context, award *models.Award) {
	if s.notifier == nil {
		return
	}

	// awarded_at is already committed, so this is the only chance to notify for the
	// window. Detach from the caller's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyAwarded(ctx, award); err != nil {
		failed := notify.FailedNotifiers(err)
		if len(failed) == 0 {
			failed = []string{"award"}
		}
		for _, name := range failed {
			prommetrics.RecordNotificationFailure(name)
		}
		s.log.Error().
			Err(err).
			Uint("award_id", award.ID).
			Msg("Failed to send award notification")
	}
}

// EvaluateAll re-scores every store and customer with bounded parallelism. Individual
// failures are counted and logged; only failing to list subjects aborts the batch.
func (s *Service) EvaluateAll(ctx context.Context) (*BatchResult, error) {
	s.log.Info().Msg("Starting award evaluation for all subjects")
	start := time.Now()

	var evaluated, awarded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, subjectType := range models.SubjectTypes {
		ids, err := s.subjects.ListIDs(ctx, subjectType)
		if err != nil {
			_ = g.Wait()
			return nil, NewStorageError("list subjects", err)
		}

		for _, id := range ids {
			g.Go(func() error {
				res, err := s.EvaluateSubject(gctx, subjectType, id)
				evaluated.Add(1)
				if err != nil {
					failed.Add(1)
					s.log.Error().
						Err(err).
						Str("subject_type", subjectType).
						Uint("subject_id", id).
						Msg("Failed to evaluate subject")
					return nil
				}
				if res.NewlyAwarded {
					awarded.Add(1)
				}
				return nil
			})
		}
	}

	_ = g.Wait()

	result := &BatchResult{
		Evaluated: int(evaluated.Load()),
		Awarded:   int(awarded.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	prommetrics.SetLastBatch(result.Evaluated, result.Awarded, result.Failed)

	s.log.Info().
		Int("evaluated", result.Evaluated).
		Int("newly_awarded", result.Awarded).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Award evaluation complete")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
