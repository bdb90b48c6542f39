package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// Record versions. Bump when the stored shape changes; older records are
// then reset instead of partially parsed.
const (
	ProgressRecordVersion = 1
	NotesRecordVersion    = 1
)

// Record names used in keys, logs and metrics.
const (
	RecordProgress    = "progress"
	RecordNotes       = "notes"
	RecordQuizSession = "quiz_session"
)

const keyPrefix = "learnsync:"

// ProgressKey is the storage key of a user's progress record.
func ProgressKey(userID string) string { return keyPrefix + RecordProgress + ":" + userID }

// NotesKey is the storage key of a user's notes record.
func NotesKey(userID string) string { return keyPrefix + RecordNotes + ":" + userID }

// ResetRecorder counts discarded records.
type ResetRecorder interface {
	IncLocalReset(record, reason string)
}

type nopRecorder struct{}

func (nopRecorder) IncLocalReset(string, string) {}

// envelope is the stored shape of every versioned record.
type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Option configures a SnapshotStore.
type Option func(*SnapshotStore)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *SnapshotStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithResetRecorder sets where discarded records are counted.
func WithResetRecorder(r ResetRecorder) Option {
	return func(s *SnapshotStore) {
		if r != nil {
			s.resets = r
		}
	}
}

// WithClock overrides the time source used for savedAt.
func WithClock(now func() time.Time) Option {
	return func(s *SnapshotStore) {
		if now != nil {
			s.now = now
		}
	}
}

// SnapshotStore persists versioned progress and notes records.
// It implements progress.Repository and notes.Repository.
type SnapshotStore struct {
	kv     KV
	log    *logger.Logger
	resets ResetRecorder
	now    func() time.Time
}

var (
	_ progress.Repository = (*SnapshotStore)(nil)
	_ notes.Repository    = (*SnapshotStore)(nil)
)

// NewSnapshotStore creates a SnapshotStore over kv.
func NewSnapshotStore(kv KV, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		kv:     kv,
		log:    logger.Nop(),
		resets: nopRecorder{},
		now:    timeutil.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("local_store"))
	return s
}

// LoadProgress returns the stored progress. Missing, corrupted or
// wrong-version records yield progress.Empty(); the latter two are
// overwritten with the empty value.
func (s *SnapshotStore) LoadProgress(ctx context.Context, userID string) (progress.Progress, error) {
	key := ProgressKey(userID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return progress.Progress{}, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		return progress.Empty(), nil
	}

	p, err := decodeProgress(raw)
	if err != nil {
		s.reset(ctx, key, RecordProgress, err, func() error {
			return s.SaveProgress(ctx, userID, progress.Empty())
		})
		return progress.Empty(), nil
	}
	return p, nil
}

// SaveProgress writes the whole progress record.
func (s *SnapshotStore) SaveProgress(ctx context.Context, userID string, p progress.Progress) error {
	return s.put(ctx, ProgressKey(userID), ProgressRecordVersion, p)
}

// LoadNotes returns the stored notes collection with the same recovery
// rules as LoadProgress.
func (s *SnapshotStore) LoadNotes(ctx context.Context, userID string) (notes.Collection, error) {
	key := NotesKey(userID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	if !ok {
		return notes.Collection{}, nil
	}

	c, err := decodeNotes(raw)
	if err != nil {
		s.reset(ctx, key, RecordNotes, err, func() error {
			return s.SaveNotes(ctx, userID, notes.Collection{})
		})
		return notes.Collection{}, nil
	}
	return c, nil
}

// SaveNotes writes the whole notes record.
func (s *SnapshotStore) SaveNotes(ctx context.Context, userID string, c notes.Collection) error {
	if c == nil {
		c = notes.Collection{}
	}
	return s.put(ctx, NotesKey(userID), NotesRecordVersion, c)
}

// Clear deletes both records of a user.
func (s *SnapshotStore) Clear(ctx context.Context, userID string) error {
	for _, key := range []string{ProgressKey(userID), NotesKey(userID)} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotStore) put(ctx context.Context, key string, version int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Version: version, SavedAt: s.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Put(ctx, key, raw)
}

func (s *SnapshotStore) reset(ctx context.Context, key, record string, cause error, write func() error) {
	reason := "corrupted"
	if errors.Is(cause, shared.ErrVersionMismatch) {
		reason = "version"
	}

	s.log.Warn("discarding local record",
		logger.StorageKey(key),
		logger.String("reason", reason),
		logger.Err(cause),
	)
	s.resets.IncLocalReset(record, reason)

	if err := write(); err != nil {
		s.log.Error("failed to reset local record", logger.StorageKey(key), logger.Err(err))
	}
}

func openEnvelope(raw []byte, version int) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, shared.WrapError("local", "Load", shared.ErrCorruptedData, "record is not a valid envelope", err)
	}
	if env.Version != version {
		return nil, shared.WrapError("local", "Load", shared.ErrVersionMismatch,
			fmt.Sprintf("record version %d, want %d", env.Version, version), shared.ErrSnapshotVersion)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || data[0] != '{' {
		return nil, shared.ErrSnapshotCorrupted
	}
	return data, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return shared.WrapError("local", "Load", shared.ErrCorruptedData, "record data does not match its shape", err)
	}
	return nil
}

func decodeProgress(raw []byte) (progress.Progress, error) {
	data, err := openEnvelope(raw, ProgressRecordVersion)
	if err != nil {
		return progress.Progress{}, err
	}

	var p progress.Progress
	if err := strictUnmarshal(data, &p); err != nil {
		return progress.Progress{}, err
	}

	if p.LastStudyDate != "" && !timeutil.IsValidDate(p.LastStudyDate) {
		return progress.Progress{}, shared.ErrSnapshotCorrupted
	}
	if p.WeeklyGoal.WeekStartDate != "" && !timeutil.IsValidDate(p.WeeklyGoal.WeekStartDate) {
		return progress.Progress{}, shared.ErrSnapshotCorrupted
	}
	for _, d := range p.StudyDates {
		if !timeutil.IsValidDate(d) {
			return progress.Progress{}, shared.ErrSnapshotCorrupted
		}
	}

	return p.Normalize(), nil
}

func decodeNotes(raw []byte) (notes.Collection, error) {
	data, err := openEnvelope(raw, NotesRecordVersion)
	if err != nil {
		return nil, err
	}

	var c notes.Collection
	if err := strictUnmarshal(data, &c); err != nil {
		return nil, err
	}
	return c.Normalize(), nil
}
