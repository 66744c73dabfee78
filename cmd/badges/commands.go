package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimd54/storefront-badges/internal/api"
	badgesapi "github.com/aimd54/storefront-badges/internal/api/badges"
	"github.com/aimd54/storefront-badges/internal/clock"
	"github.com/aimd54/storefront-badges/internal/repository"
	"github.com/aimd54/storefront-badges/internal/service/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.db.Migrate(); err != nil {
			return err
		}

		checks := map[string]api.HealthChecker{"database": a.db}
		if a.cache != nil {
			checks["redis"] = a.cache
		}

		metricsPath := ""
		if a.cfg.Metrics.Prometheus.Enabled {
			metricsPath = a.cfg.Metrics.Prometheus.Path
		}

		router := api.NewRouter(api.RouterConfig{
			Environment: a.cfg.Server.Environment,
			MetricsPath: metricsPath,
			Checks:      checks,
			Handlers: []api.RouteRegistrar{
				badgesapi.NewHandler(a.awards, a.recorder, a.log.Component("api")),
			},
			Log: a.log.Component("http"),
		})

		sched := scheduler.NewService(&a.cfg.Scheduler, a.awards, clock.System{}, a.log.Component("scheduler"))
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info().Int("port", a.cfg.Server.Port).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			a.log.Info().Msg("Received signal, shutting down")
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		a.log.Info().Msg("Shutdown complete")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := repository.NewDB(&cfg.Database, log.Component("database"))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			return err
		}
		log.Info().Str("driver", db.Dialect()).Msg("Migrations applied")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate expired awards once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := commandContext(5 * time.Minute)
		defer cancel()

		n, err := a.awards.SweepExpired(ctx, a.awards.Now())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int64{"deactivated": n})
	},
}

var recalculateCmd = &cobra.Command{
	Use:   "recalculate [store|customer] [id]",
	Short: "Evaluate one subject, or every subject when no arguments are given",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <subject-type> <id>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := commandContext(30 * time.Minute)
		defer cancel()

		if len(args) == 0 {
			res, err := a.awards.EvaluateAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}

		var id uint
		if _, err := fmt.Sscanf(args[1], "%d", &id); err != nil || id == 0 {
			return fmt.Errorf("invalid subject id %q", args[1])
		}
		res, err := a.awards.EvaluateSubject(ctx, args[0], id)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
