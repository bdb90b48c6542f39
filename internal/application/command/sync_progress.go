package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/internal/domain/syncmerge"
	"github.com/alem-hub/learnsync/pkg/circuitbreaker"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/retry"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC PROGRESS COMMAND
// Reconciles the local snapshot with the remote store:
// fetch → merge → adopt → push.
// ══════════════════════════════════════════════════════════════════════════════

// ErrSyncInProgress is returned when a sync is triggered while one is running.
var ErrSyncInProgress = errors.New("sync_progress: sync already in progress")

// Sync outcomes reported to the recorder.
const (
	SyncOutcomeSynced  = "synced"
	SyncOutcomePushed  = "pushed"
	SyncOutcomeError   = "error"
	SyncOutcomeSkipped = "skipped"
)

// SyncState is the coarse sync status shown to the UI.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)

// SyncStatus describes the last sync run.
type SyncStatus struct {
	State         SyncState `json:"state"`
	LastError     string    `json:"lastError,omitempty"`
	LastSyncedAt  time.Time `json:"lastSyncedAt,omitempty"`
	LastAttemptAt time.Time `json:"lastAttemptAt,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// SyncProgressCommand triggers one sync run.
type SyncProgressCommand struct {
	// CorrelationID for tracing. Generated when empty.
	CorrelationID string
}

// SyncProgressResult contains the result of a sync run.
type SyncProgressResult struct {
	CorrelationID  string
	PushedProgress bool
	PushedNotes    bool
	RemoteMissing  bool
	Streak         int
	NotesCount     int
	Duration       time.Duration
	SyncedAt       time.Time
}

// Pushed reports whether anything was written to the remote store.
func (r SyncProgressResult) Pushed() bool {
	return r.PushedProgress || r.PushedNotes
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// RemoteStore fetches and upserts a user's remote snapshot.
type RemoteStore interface {
	// Fetch returns the remote snapshot. Progress is nil when absent.
	Fetch(ctx context.Context, userID string) (syncmerge.Snapshot, error)

	// Upsert writes progress and notes.
	Upsert(ctx context.Context, userID string, p progress.Progress, n notes.Collection) error
}

// SyncRecorder receives sync instrumentation.
type SyncRecorder interface {
	ObserveSync(outcome string, d time.Duration)
	IncRemoteRetry(operation string)
	SetBreakerState(name string, state int)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SyncProgressHandlerConfig contains configuration for the handler.
type SyncProgressHandlerConfig struct {
	RequestTimeout   time.Duration
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultSyncProgressHandlerConfig returns default configuration.
func DefaultSyncProgressHandlerConfig() SyncProgressHandlerConfig {
	return SyncProgressHandlerConfig{
		RequestTimeout:   10 * time.Second,
		MaxAttempts:      3,
		RetryBaseDelay:   500 * time.Millisecond,
		RetryMaxDelay:    10 * time.Second,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}
}

// SyncProgressHandler handles the SyncProgressCommand.
type SyncProgressHandler struct {
	store          *progress.Store
	book           *notes.Book
	remote         RemoteStore
	eventPublisher shared.EventPublisher
	recorder       SyncRecorder
	log            *logger.Logger

	retrier        *retry.Retrier
	breaker        *circuitbreaker.CircuitBreaker
	requestTimeout time.Duration
	now            func() time.Time

	running  sync.Mutex
	statusMu sync.RWMutex
	status   SyncStatus
}

// NewSyncProgressHandler creates a new SyncProgressHandler.
func NewSyncProgressHandler(
	store *progress.Store,
	book *notes.Book,
	remote RemoteStore,
	eventPublisher shared.EventPublisher,
	recorder SyncRecorder,
	log *logger.Logger,
	config SyncProgressHandlerConfig,
) *SyncProgressHandler {
	def := DefaultSyncProgressHandlerConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = def.RetryBaseDelay
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		config.RetryMaxDelay = def.RetryMaxDelay
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = def.BreakerThreshold
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = def.BreakerCooldown
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}

	h := &SyncProgressHandler{
		store:          store,
		book:           book,
		remote:         remote,
		eventPublisher: eventPublisher,
		recorder:       recorder,
		log:            log.With(logger.Component("sync_progress")),
		requestTimeout: config.RequestTimeout,
		now:            timeutil.Now,
		status:         SyncStatus{State: SyncIdle},
	}

	h.retrier = retry.RemoteStoreRetrier(config.MaxAttempts, config.RetryBaseDelay, config.RetryMaxDelay).
		With(retry.WithRetryIf(shared.IsRetryable))
	h.breaker = circuitbreaker.RemoteStoreBreaker(
		config.BreakerThreshold,
		config.BreakerCooldown,
		shared.IsExternalService,
		h.onBreakerStateChange,
	)
	return h
}

func (h *SyncProgressHandler) onBreakerStateChange(name string, from, to circuitbreaker.State) {
	h.recorder.SetBreakerState(name, int(to))
	h.log.Warn("circuit breaker state changed",
		logger.String("breaker", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
}

// Status returns the status of the last sync run.
func (h *SyncProgressHandler) Status() SyncStatus {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.status
}

func (h *SyncProgressHandler) setStatus(fn func(s *SyncStatus)) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	fn(&h.status)
}

// BreakerState returns the state of the remote store circuit breaker.
func (h *SyncProgressHandler) BreakerState() circuitbreaker.State {
	return h.breaker.State()
}

// Handle executes one sync run. Only one run proceeds at a time; a
// concurrent trigger returns ErrSyncInProgress without touching anything.
// On failure the local snapshot stays as it was before the failing step.
func (h *SyncProgressHandler) Handle(ctx context.Context, cmd SyncProgressCommand) (*SyncProgressResult, error) {
	if !h.running.TryLock() {
		h.recorder.ObserveSync(SyncOutcomeSkipped, 0)
		return nil, ErrSyncInProgress
	}
	defer h.running.Unlock()

	correlationID := cmd.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	userID := h.store.UserID()
	log := h.log.WithCorrelationID(correlationID).With(logger.UserID(userID))
	ctx = logger.WithContext(ctx, log)

	start := h.now()
	h.setStatus(func(s *SyncStatus) {
		s.State = SyncSyncing
		s.LastAttemptAt = start.UTC()
		s.CorrelationID = correlationID
	})

	result, err := h.run(ctx, userID, correlationID, log)
	elapsed := h.now().Sub(start)
	if err != nil {
		h.recorder.ObserveSync(SyncOutcomeError, elapsed)
		h.setStatus(func(s *SyncStatus) {
			s.State = SyncError
			s.LastError = err.Error()
		})
		log.Error("sync failed", logger.Latency(elapsed), logger.Err(err))
		return nil, fmt.Errorf("sync_progress: %w", err)
	}

	result.Duration = elapsed
	outcome := SyncOutcomeSynced
	if result.Pushed() {
		outcome = SyncOutcomePushed
	}
	h.recorder.ObserveSync(outcome, elapsed)
	h.setStatus(func(s *SyncStatus) {
		s.State = SyncSynced
		s.LastError = ""
		s.LastSyncedAt = result.SyncedAt
	})

	log.Info("sync completed",
		logger.String("outcome", outcome),
		logger.Bool("remote_missing", result.RemoteMissing),
		logger.StreakDays(result.Streak),
		logger.Int("notes", result.NotesCount),
		logger.Latency(elapsed),
	)
	return result, nil
}

func (h *SyncProgressHandler) run(ctx context.Context, userID, correlationID string, log *logger.Logger) (*SyncProgressResult, error) {
	remote, err := h.fetch(ctx, userID, log)
	if err != nil {
		return nil, err
	}

	// Other processes write the local store directly, so merge against what
	// is stored now rather than the snapshot loaded at startup.
	adopted, err := h.store.Merge(ctx, func(local progress.Progress) progress.Progress {
		return syncmerge.MergeProgress(local, remote.ProgressOrEmpty())
	})
	if err != nil {
		return nil, fmt.Errorf("adopt merged progress: %w", err)
	}
	adoptedNotes, err := h.book.Merge(ctx, func(local notes.Collection) notes.Collection {
		return syncmerge.MergeNotes(local, remote.Notes)
	})
	if err != nil {
		return nil, fmt.Errorf("adopt merged notes: %w", err)
	}

	// Merge repairs the weekly goal, so compare what the store now holds.
	result := &SyncProgressResult{
		CorrelationID:  correlationID,
		PushedProgress: syncmerge.HasProgressChanges(adopted, remote.Progress),
		PushedNotes:    syncmerge.HasNotesChanges(adoptedNotes, remote.Notes),
		RemoteMissing:  remote.Progress == nil,
		Streak:         adopted.Streak,
		NotesCount:     len(adoptedNotes),
	}

	if result.Pushed() {
		if err := h.push(ctx, userID, adopted, adoptedNotes, log); err != nil {
			return nil, err
		}
	}

	result.SyncedAt = h.now().UTC()

	event := shared.NewSnapshotSyncedEvent(userID, result.Pushed(), result.SyncedAt)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	if err := h.eventPublisher.Publish(event); err != nil {
		log.Warn("failed to publish sync event", logger.Err(err))
	}
	return result, nil
}

func (h *SyncProgressHandler) fetch(ctx context.Context, userID string, log *logger.Logger) (syncmerge.Snapshot, error) {
	r := h.retrier.With(retry.WithOnRetry(h.onRetry("Fetch", log)))
	return retry.DoWithData(ctx, r, func(ctx context.Context) (syncmerge.Snapshot, error) {
		var snap syncmerge.Snapshot
		err := h.breaker.Execute(ctx, func(ctx context.Context) error {
			reqCtx, cancel := context.WithTimeout(ctx, h.requestTimeout)
			defer cancel()

			var err error
			snap, err = h.remote.Fetch(reqCtx, userID)
			return err
		})
		return snap, err
	})
}

func (h *SyncProgressHandler) push(ctx context.Context, userID string, p progress.Progress, n notes.Collection, log *logger.Logger) error {
	r := h.retrier.With(retry.WithOnRetry(h.onRetry("Upsert", log)))
	return r.Do(ctx, func(ctx context.Context) error {
		return h.breaker.Execute(ctx, func(ctx context.Context) error {
			reqCtx, cancel := context.WithTimeout(ctx, h.requestTimeout)
			defer cancel()
			return h.remote.Upsert(reqCtx, userID, p, n)
		})
	})
}

func (h *SyncProgressHandler) onRetry(op string, log *logger.Logger) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		h.recorder.IncRemoteRetry(op)
		log.Warn("remote store call failed, retrying",
			logger.Operation(op),
			logger.Attempt(attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
}
