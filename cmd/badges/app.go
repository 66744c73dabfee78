package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/storefront-badges/internal/cache"
	"github.com/aimd54/storefront-badges/internal/clock"
	"github.com/aimd54/storefront-badges/internal/config"
	"github.com/aimd54/storefront-badges/internal/mattermost"
	"github.com/aimd54/storefront-badges/internal/notify"
	"github.com/aimd54/storefront-badges/internal/repository"
	"github.com/aimd54/storefront-badges/internal/service/badges"
	"github.com/aimd54/storefront-badges/internal/service/events"
	"github.com/aimd54/storefront-badges/internal/service/metrics"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *repository.DB
	cache    *cache.RedisCache
	awards   *badges.Service
	recorder *events.Recorder
	closers  []func() error
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	return cfg, log, nil
}

func newApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(&cfg.Database, log.Component("database"))
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	if err := a.wire(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	loc, err := cfg.Badges.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid badges timezone: %w", err)
	}
	weekStart, err := cfg.Badges.GetWeekStart()
	if err != nil {
		return err
	}

	awardRepo := repository.NewAwardRepository(a.db)
	subjectRepo := repository.NewSubjectRepository(a.db)
	eventRepo := repository.NewEventRepository(a.db)
	sources := repository.NewMetricSourceRepository(a.db)

	criteria, err := badges.BuildCriteria(cfg.Badges.Criteria, metrics.NewRegistry(sources))
	if err != nil {
		return err
	}

	evaluator := badges.NewEvaluator(criteria, cfg.Badges.MetricTimeout, a.log.Component("evaluator"))
	windows := badges.NewWindowCalculator(loc, weekStart, cfg.Badges.GracePeriod)

	opts := []badges.Option{
		badges.WithClock(clock.System{}),
		badges.WithConcurrency(cfg.Badges.Concurrency),
	}

	if cfg.Database.Redis.Enabled {
		rc, err := cache.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			return err
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
		opts = append(opts, badges.WithLocker(
			cache.NewLocker(rc, cfg.Badges.LockTTL, cfg.Badges.LockWait, a.log.Component("lease")),
		))
	}

	notifier, err := a.notifier()
	if err != nil {
		return err
	}
	if notifier.Len() > 0 {
		opts = append(opts, badges.WithNotifier(notifier))
	}

	a.awards = badges.NewService(awardRepo, subjectRepo, evaluator, windows, a.log.Component("awards"), opts...)
	a.recorder = events.NewRecorder(eventRepo, subjectRepo, clock.System{}, loc, a.log.Component("events"))
	return nil
}

func (a *app) notifier() (*notify.Multi, error) {
	var targets []notify.Named

	if a.cfg.Mattermost.Enabled {
		targets = append(targets, notify.Named{
			Name:     "mattermost",
			Notifier: mattermost.NewClient(&a.cfg.Mattermost, a.log.Component("mattermost")),
		})
	}

	if a.cfg.NATS.Enabled {
		pub, err := notify.NewNATSPublisher(a.cfg.NATS.URL, a.cfg.NATS.Subject)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		targets = append(targets, notify.Named{Name: "nats", Notifier: pub})
		a.log.Info().Str("url", a.cfg.NATS.URL).Str("subject", a.cfg.NATS.Subject).Msg("NATS award events enabled")
	}

	return notify.NewMulti(targets...), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error().Err(err).Msg("Error during shutdown")
		}
	}
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
