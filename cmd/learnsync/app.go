package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alem-hub/learnsync/config"
	"github.com/alem-hub/learnsync/internal/application/command"
	"github.com/alem-hub/learnsync/internal/application/query"
	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/internal/infrastructure/catalog"
	"github.com/alem-hub/learnsync/internal/infrastructure/messaging"
	"github.com/alem-hub/learnsync/internal/infrastructure/metrics"
	"github.com/alem-hub/learnsync/internal/infrastructure/persistence/local"
	"github.com/alem-hub/learnsync/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/learnsync/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/learnsync/pkg/circuitbreaker"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/retry"
)

// app holds every wired collaborator of one learnsync process.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	kv        local.KV
	closeKV   func() error
	snapshots *local.SnapshotStore
	quizzes   *local.QuizSessionStore

	store *progress.Store
	book  *notes.Book

	db    *postgres.Connection
	cache *redis.Cache
	feed  *redis.ChangeFeed

	catalog *catalog.Catalog

	bus       *messaging.InMemoryEventBus
	publisher shared.EventPublisher
	record    *command.RecordStudyEventHandler
	notes     *command.NoteHandler
	reset     *command.ResetProgressHandler
	sync      *command.SyncProgressHandler // nil when remote sync is off
	summary   *query.GetHabitSummaryHandler
	overview  *query.GetProgressOverviewHandler
}

// appOptions selects which collaborators a command needs.
type appOptions struct {
	remote bool
}

func newLogger(cfg *config.Config, levelOverride string) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if levelOverride != "" {
		opts.Level = logger.ParseLevel(levelOverride)
	}
	opts.FilePath = cfg.Observability.LogFile
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
	}
	a.bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		Logger:   log,
		Recorder: a.metrics,
	})
	a.publisher = a.bus
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Local snapshot storage
	// ─────────────────────────────────────────────────────────────────────────
	switch cfg.Local.Driver {
	case config.LocalDriverMemory:
		a.kv = local.NewMemoryKV()
	default:
		sqlite, err := local.OpenSQLite(ctx, cfg.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		a.kv = sqlite
		a.closeKV = sqlite.Close
	}

	localOpts := []local.Option{local.WithLogger(log), local.WithResetRecorder(a.metrics)}
	a.snapshots = local.NewSnapshotStore(a.kv, localOpts...)
	a.quizzes = local.NewQuizSessionStore(a.kv, localOpts...)

	onPersistError := func(op string, err error) {
		a.metrics.IncPersistFailure(op)
		log.Error("failed to persist local snapshot", logger.Operation(op), logger.Err(err))
	}

	a.store, err = progress.Open(ctx, cfg.App.UserID, a.snapshots,
		progress.WithWeeklyTarget(cfg.Goals.WeeklyTarget),
		progress.WithPersistErrorHandler(onPersistError),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress store: %w", err)
	}
	a.book, err = notes.OpenBook(ctx, cfg.App.UserID, a.snapshots, notes.WithPersistErrorHandler(onPersistError))
	if err != nil {
		return nil, fmt.Errorf("failed to open notes: %w", err)
	}

	a.catalog, err = catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional): snapshot cache and change feed
	// ─────────────────────────────────────────────────────────────────────────
	if opts.remote && !cfg.Redis.Disabled && (cfg.Features.SnapshotCache || cfg.Features.ChangeFeed) {
		a.cache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, continuing without cache and change feed", logger.Err(err))
			a.cache, err = nil, nil
		}
	}
	if a.cache != nil && cfg.Features.ChangeFeed {
		a.feed = redis.NewChangeFeed(a.cache, log)
		if err := a.bus.SubscribeAll(a.feed.Publish); err != nil {
			return nil, fmt.Errorf("failed to attach change feed: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Remote store
	// ─────────────────────────────────────────────────────────────────────────
	var remote command.RemoteStore
	if opts.remote {
		if !cfg.Features.RemoteSync {
			return nil, errors.New("remote sync is disabled (set DATABASE_URL or FEATURE_REMOTE_SYNC)")
		}
		a.db, err = connectDatabase(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		remote = postgres.NewRemoteStore(a.db, log)

		if a.cache != nil && cfg.Features.SnapshotCache {
			breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
				a.metrics.SetBreakerState(name, int(to))
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			})
			snapshotCache := redis.NewSnapshotCache(a.cache, cfg.Redis.CacheTTL, log,
				redis.WithBreaker(breaker),
				redis.WithInvalidateRetrier(retry.CacheRetrier()),
			)
			remote = redis.NewCachedRemote(remote, snapshotCache, log)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Handlers
	// ─────────────────────────────────────────────────────────────────────────
	a.record = command.NewRecordStudyEventHandler(a.store, a.publisher, a.metrics, log)
	a.notes = command.NewNoteHandler(a.book, log)
	a.reset = command.NewResetProgressHandler(a.store, a.book, a.publisher, log)
	a.summary = query.NewGetHabitSummaryHandler(a.store, a.catalog, log)
	a.overview = query.NewGetProgressOverviewHandler(a.store, log)

	if remote != nil {
		a.sync = command.NewSyncProgressHandler(a.store, a.book, remote, a.publisher, a.metrics, log,
			command.SyncProgressHandlerConfig{
				RequestTimeout:   cfg.Sync.RequestTimeout,
				MaxAttempts:      cfg.Sync.MaxAttempts,
				RetryBaseDelay:   cfg.Sync.RetryBaseDelay,
				RetryMaxDelay:    cfg.Sync.RetryMaxDelay,
				BreakerThreshold: cfg.Sync.CircuitBreakerThreshold,
				BreakerCooldown:  cfg.Sync.CircuitBreakerTimeout,
			})
	}

	return a, nil
}

func (a *app) close() {
	if err := a.bus.Close(); err != nil {
		a.log.Warn("failed to close event bus", logger.Err(err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("failed to close redis", logger.Err(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.closeKV != nil {
		if err := a.closeKV(); err != nil {
			a.log.Warn("failed to close local store", logger.Err(err))
		}
	}
	_ = a.log.Sync()
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	rc.MinIdleConns = c.MinIdleConns
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	return rc
}

// connectDatabase opens the remote pool, retrying transient failures.
func connectDatabase(ctx context.Context, c config.DatabaseConfig, log *logger.Logger) (*postgres.Connection, error) {
	settings := postgres.DefaultPoolSettings()
	if c.MaxOpenConns > 0 {
		settings.MaxConns = int32(c.MaxOpenConns)
	}
	settings.MinConns = int32(min(c.MaxIdleConns, c.MaxOpenConns))
	if c.ConnMaxLifetime > 0 {
		settings.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		settings.MaxConnIdleTime = c.ConnMaxIdleTime
	}

	r := retry.DatabaseRetrier().With(
		retry.WithRetryIf(func(error) bool { return true }),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("database connection failed, retrying",
				logger.Attempt(attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
	conn, err := retry.DoWithData(ctx, r, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnectionFromURL(ctx, c.URL, settings)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}
