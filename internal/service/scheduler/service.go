// Package scheduler runs the periodic award jobs: the expiry sweep and the
// full recalculation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/storefront-badges/internal/clock"
	"github.com/aimd54/storefront-badges/internal/config"
	prommetrics "github.com/aimd54/storefront-badges/internal/metrics"
	"github.com/aimd54/storefront-badges/internal/service/badges"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

// Job names, also used as metric labels.
const (
	JobSweep         = "sweep_expired"
	JobRecalculation = "recalculate_all"
)

// AwardJobs is the part of the award service the scheduler drives.
type AwardJobs interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	EvaluateAll(ctx context.Context) (*badges.BatchResult, error)
}

// Service handles periodic job scheduling.
type Service struct {
	config  *config.SchedulerConfig
	awards  AwardJobs
	clock   clock.Clock
	timeout time.Duration
	log     *logger.Logger
	cron    *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, awards AwardJobs, clk clock.Clock, log *logger.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		config:  cfg,
		awards:  awards,
		clock:   clk,
		timeout: 30 * time.Minute,
		log:     log,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{JobSweep, s.config.SweepSchedule, s.RunSweep},
		{JobRecalculation, s.config.RecalculationSchedule, s.RunRecalculation},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			s.log.Info().Str("job", job.name).Msg("Job has no schedule, skipping")
			continue
		}
		if err := ValidateSchedule(job.schedule); err != nil {
			return fmt.Errorf("invalid schedule for %s: %w", job.name, err)
		}

		run := job.run
		if _, err := s.cron.AddFunc(job.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			_ = run(ctx)
		}); err != nil {
			return fmt.Errorf("failed to register %s job: %w", job.name, err)
		}

		s.log.Info().
			Str("job", job.name).
			Str("schedule", job.schedule).
			Msg("Job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// RunSweep deactivates expired awards.
func (s *Service) RunSweep(ctx context.Context) error {
	return s.track(JobSweep, func() error {
		n, err := s.awards.SweepExpired(ctx, s.clock.Now())
		if err != nil {
			return err
		}
		s.log.Info().Int64("deactivated", n).Msg("Sweep job completed")
		return nil
	})
}

// RunRecalculation re-evaluates every subject for the current window.
func (s *Service) RunRecalculation(ctx context.Context) error {
	return s.track(JobRecalculation, func() error {
		res, err := s.awards.EvaluateAll(ctx)
		if err != nil {
			return err
		}
		s.log.Info().
			Int("evaluated", res.Evaluated).
			Int("newly_awarded", res.Awarded).
			Int("failed", res.Failed).
			Msg("Recalculation job completed")
		return nil
	})
}

func (s *Service) track(job string, fn func() error) error {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(job, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(job)
	}()

	s.log.Info().Str("job", job).Msg("Running scheduled job")

	if err := fn(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job).
			Dur("duration", time.Since(start)).
			Msg("Scheduled job failed")
		prommetrics.RecordSchedulerJobRun(job, "error")
		return err
	}

	prommetrics.RecordSchedulerJobRun(job, "success")
	return nil
}
