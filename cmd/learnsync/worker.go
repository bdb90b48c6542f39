package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/learnsync/internal/application/command"
	"github.com/alem-hub/learnsync/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/learnsync/internal/infrastructure/scheduler"
	"github.com/alem-hub/learnsync/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/alem-hub/learnsync/internal/interface/http"
	"github.com/alem-hub/learnsync/pkg/logger"
)

func workerCmd(flags *rootFlags) *cobra.Command {
	var noInitialSync bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the periodic sync worker",
		Long: `Runs the background sync loop: the local snapshot is reconciled with the
remote store every SYNC_INTERVAL, and immediately when another device
announces a change on the change feed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			return withApp(ctx, flags, appOptions{remote: true}, func(ctx context.Context, a *app) error {
				return runWorker(ctx, a, !noInitialSync)
			})
		},
	}
	cmd.Flags().BoolVar(&noInitialSync, "no-initial-sync", false, "Wait one interval before the first sync")
	return cmd
}

func runWorker(ctx context.Context, a *app, runOnStart bool) error {
	log := a.log
	cfg := a.cfg

	log.Info("starting learnsync worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.UserID(cfg.App.UserID),
		logger.Duration("interval", cfg.Sync.Interval),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultConfig()
	schedCfg.RunOnStart = runOnStart
	sched := scheduler.New(schedCfg, log)

	syncJob := jobs.NewSyncProgressJob(a.sync, log, jobs.SyncProgressConfig{
		Timeout: cfg.Sync.RequestTimeout * time.Duration(max(cfg.Sync.MaxAttempts, 1)*2),
	})
	if err := sched.Register(syncJob, cfg.Sync.Interval); err != nil {
		return fmt.Errorf("failed to register sync job: %w", err)
	}
	sched.OnJobComplete(func(result scheduler.JobResult) {
		stats := syncJob.Stats()
		log.Debug("sync job stats",
			logger.Int64("runs", stats.Runs),
			logger.Int64("pushed", stats.Pushed),
			logger.Int64("skipped", stats.Skipped),
			logger.Int64("failed", stats.Failed),
			logger.Bool("manual", result.Manual),
		)
	})

	var wg sync.WaitGroup

	// ─────────────────────────────────────────────────────────────────────────
	// 2. OPS ENDPOINTS (health, metrics, sync status)
	// ─────────────────────────────────────────────────────────────────────────
	var ops *httpapi.Server
	if cfg.Observability.MetricsEnabled {
		health := httpapi.NewCompositeHealthChecker(cfg.App.Version)
		health.AddCheck("local_store", func(ctx context.Context) error {
			_, _, err := a.kv.Get(ctx, "health")
			return err
		})
		health.AddCheck("database", httpapi.NewPingCheck(a.db))
		if a.cache != nil {
			health.AddCheck("redis", httpapi.NewPingCheck(a.cache))
		}

		opsCfg := httpapi.DefaultConfig()
		opsCfg.Port = cfg.Observability.MetricsPort
		ops = httpapi.NewServer(opsCfg, httpapi.Dependencies{
			Health:   health,
			Metrics:  a.metrics.Handler(),
			Sync:     syncController{handler: a.sync},
			Overview: a.overview,
			Habit:    a.summary,
			Logger:   log,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := <-ops.StartAsync(); err != nil {
				log.Error("ops server failed", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CHANGE FEED
	// ─────────────────────────────────────────────────────────────────────────
	if a.feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.feed.Listen(ctx, cfg.App.UserID, func(ctx context.Context, msg redis.ChangeMessage) error {
				log.Info("remote change announced, syncing",
					logger.String("event", string(msg.Type)),
					logger.String("origin", msg.Origin),
				)
				_, err := sched.RunNow(ctx, syncJob.Name())
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("change feed stopped", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("learnsync worker is running")

	<-ctx.Done()
	log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := sched.Stop(); err != nil {
		log.Warn("failed to stop scheduler", logger.Err(err))
	}
	if ops != nil {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to stop ops server", logger.Err(err))
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out, exiting anyway")
	}

	status := a.sync.Status()
	log.Info("shutdown completed",
		logger.String("sync_state", string(status.State)),
		logger.Time("last_synced_at", status.LastSyncedAt),
	)
	return nil
}

// syncOnce runs one sync outside the scheduler.
func syncOnce(ctx context.Context, a *app) (*command.SyncProgressResult, error) {
	return a.sync.Handle(ctx, command.SyncProgressCommand{})
}

// syncController exposes the sync handler to the ops server.
type syncController struct {
	handler *command.SyncProgressHandler
}

func (c syncController) Status() command.SyncStatus { return c.handler.Status() }

func (c syncController) Trigger(ctx context.Context) error {
	_, err := c.handler.Handle(ctx, command.SyncProgressCommand{})
	return err
}
