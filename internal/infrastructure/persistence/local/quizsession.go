package local

import (
	"context"
	"fmt"

	"github.com/alem-hub/learnsync/internal/domain/quizsession"
	"github.com/alem-hub/learnsync/pkg/logger"
)

// QuizSessionKey is the storage key of one quiz resume slot.
func QuizSessionKey(userID, quizID string) string {
	return keyPrefix + RecordQuizSession + ":" + userID + ":" + quizID
}

// QuizSessionStore keeps one resumable session per quiz.
type QuizSessionStore struct {
	kv     KV
	log    *logger.Logger
	resets ResetRecorder
}

// NewQuizSessionStore creates a QuizSessionStore. Logger and reset recorder
// options are shared with SnapshotStore.
func NewQuizSessionStore(kv KV, opts ...Option) *QuizSessionStore {
	cfg := NewSnapshotStore(kv, opts...)
	return &QuizSessionStore{
		kv:     kv,
		log:    cfg.log.With(logger.Component("quiz_session_store")),
		resets: cfg.resets,
	}
}

// Load returns the resumable session of quizID. Finished records, records of
// another quiz and unreadable records are deleted and reported as absent.
func (s *QuizSessionStore) Load(ctx context.Context, userID, quizID string) (quizsession.Session, bool, error) {
	key := QuizSessionKey(userID, quizID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return quizsession.Session{}, false, fmt.Errorf("load quiz session: %w", err)
	}
	if !ok {
		return quizsession.Session{}, false, nil
	}

	session, ok := quizsession.Decode(raw, quizID)
	if !ok {
		s.log.Debug("dropping stale quiz session", logger.StorageKey(key))
		s.resets.IncLocalReset(RecordQuizSession, "stale")
		if err := s.kv.Delete(ctx, key); err != nil {
			return quizsession.Session{}, false, fmt.Errorf("delete quiz session: %w", err)
		}
		return quizsession.Session{}, false, nil
	}
	return session, true, nil
}

// Save writes the session into its quiz slot.
func (s *QuizSessionStore) Save(ctx context.Context, userID string, session quizsession.Session) error {
	data, err := session.Encode()
	if err != nil {
		return fmt.Errorf("encode quiz session: %w", err)
	}
	return s.kv.Put(ctx, QuizSessionKey(userID, session.QuizID), data)
}

// Delete removes the quiz slot.
func (s *QuizSessionStore) Delete(ctx context.Context, userID, quizID string) error {
	return s.kv.Delete(ctx, QuizSessionKey(userID, quizID))
}
