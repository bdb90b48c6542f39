// Package jobs contains the scheduled jobs of learnsync.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/learnsync/internal/application/command"
	"github.com/alem-hub/learnsync/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC PROGRESS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Syncer runs one sync of the local snapshot against the remote store.
type Syncer interface {
	Handle(ctx context.Context, cmd command.SyncProgressCommand) (*command.SyncProgressResult, error)
}

// SyncProgressConfig contains configuration for the sync job.
type SyncProgressConfig struct {
	// Timeout is the maximum duration of one sync run.
	Timeout time.Duration
}

// DefaultSyncProgressConfig returns default configuration.
func DefaultSyncProgressConfig() SyncProgressConfig {
	return SyncProgressConfig{Timeout: 2 * time.Minute}
}

// SyncStats contains counters over all runs of the job.
type SyncStats struct {
	Runs        int64
	Pushed      int64
	Skipped     int64
	Failed      int64
	LastRunAt   time.Time
	LastSuccess time.Time
}

// SyncProgressJob triggers a progress sync on every tick.
type SyncProgressJob struct {
	syncer Syncer
	log    *logger.Logger
	config SyncProgressConfig

	runs    atomic.Int64
	pushed  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64

	lastRunAt   atomic.Pointer[time.Time]
	lastSuccess atomic.Pointer[time.Time]
}

// NewSyncProgressJob creates a new sync job.
func NewSyncProgressJob(syncer Syncer, log *logger.Logger, config SyncProgressConfig) *SyncProgressJob {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncProgressJob{
		syncer: syncer,
		log:    log.With(logger.Component("sync_progress_job")),
		config: config,
	}
}

// Name returns the job name.
func (j *SyncProgressJob) Name() string {
	return "sync_progress"
}

// Description returns a human-readable description.
func (j *SyncProgressJob) Description() string {
	return "Reconciles the local progress snapshot with the remote store"
}

// Run executes the sync job. A run that finds another sync in flight is
// counted as skipped, not failed.
func (j *SyncProgressJob) Run(ctx context.Context) error {
	now := time.Now()
	j.lastRunAt.Store(&now)
	j.runs.Add(1)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	result, err := j.syncer.Handle(ctx, command.SyncProgressCommand{})
	switch {
	case errors.Is(err, command.ErrSyncInProgress):
		j.skipped.Add(1)
		j.log.Debug("sync already in progress, skipping tick")
		return nil
	case err != nil:
		j.failed.Add(1)
		return fmt.Errorf("sync_progress job: %w", err)
	}

	if result.Pushed() {
		j.pushed.Add(1)
	}
	done := time.Now()
	j.lastSuccess.Store(&done)
	return nil
}

// Stats returns the counters of the job.
func (j *SyncProgressJob) Stats() SyncStats {
	s := SyncStats{
		Runs:    j.runs.Load(),
		Pushed:  j.pushed.Load(),
		Skipped: j.skipped.Load(),
		Failed:  j.failed.Load(),
	}
	if t := j.lastRunAt.Load(); t != nil {
		s.LastRunAt = *t
	}
	if t := j.lastSuccess.Load(); t != nil {
		s.LastSuccess = *t
	}
	return s
}
