package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/internal/domain/syncmerge"
	"github.com/alem-hub/learnsync/pkg/logger"
)

// RemoteStore reads and writes a user's progress and notes snapshot.
type RemoteStore struct {
	conn *Connection
	log  *logger.Logger
}

// NewRemoteStore creates a new RemoteStore.
func NewRemoteStore(conn *Connection, log *logger.Logger) *RemoteStore {
	if log == nil {
		log = logger.Nop()
	}
	return &RemoteStore{conn: conn, log: log.With(logger.Component("remote_store"))}
}

// Fetch returns the remote snapshot. Progress is nil when the user has no
// progress row yet.
func (s *RemoteStore) Fetch(ctx context.Context, userID string) (syncmerge.Snapshot, error) {
	var snap syncmerge.Snapshot

	err := s.conn.WithTx(ctx, ReadOnly, func(tx pgx.Tx) error {
		var row progressRow
		err := tx.QueryRow(ctx,
			`SELECT `+progressColumns+` FROM user_progress WHERE user_id = $1`, userID,
		).Scan(row.scanTargets()...)
		switch {
		case IsNoRows(err):
		case err != nil:
			return fmt.Errorf("select progress: %w", err)
		default:
			p, err := ProgressFromRow(row)
			if err != nil {
				return err
			}
			snap.Progress = &p
		}

		rows, err := tx.Query(ctx, `
			SELECT lesson_id, markdown, created_at, updated_at
			FROM user_notes
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("select notes: %w", err)
		}
		defer rows.Close()

		snap.Notes = notes.Collection{}
		for rows.Next() {
			var n noteRow
			if err := rows.Scan(&n.LessonID, &n.Markdown, &n.CreatedAt, &n.UpdatedAt); err != nil {
				return fmt.Errorf("scan note: %w", err)
			}
			snap.Notes[n.LessonID] = n.toNote()
		}
		return rows.Err()
	})
	if err != nil {
		return syncmerge.Snapshot{}, s.classify("Fetch", err)
	}

	return snap, nil
}

// Upsert writes the progress row and every note in one transaction. A note
// is only overwritten when the incoming copy is at least as recent.
func (s *RemoteStore) Upsert(ctx context.Context, userID string, p progress.Progress, n notes.Collection) error {
	row, err := ProgressToRow(userID, p)
	if err != nil {
		return shared.WrapError("sync", "Upsert", shared.ErrInvalidFormat, "cannot encode progress row", err)
	}

	err = s.conn.WithTx(ctx, ReadWrite, func(tx pgx.Tx) error {
		query, args := buildUpsert("user_progress", row, []string{"user_id"}, true, "")
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert progress: %w", err)
		}

		for _, note := range n.Sorted() {
			query, args := buildUpsert("user_notes", NoteToRow(userID, note),
				[]string{"user_id", "lesson_id"}, false,
				"user_notes.updated_at <= EXCLUDED.updated_at")
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert note %s: %w", note.LessonID, err)
			}
		}
		return nil
	})
	if err != nil {
		return s.classify("Upsert", err)
	}

	s.log.Debug("remote snapshot written",
		logger.UserID(userID),
		logger.Int("notes", len(n)),
	)
	return nil
}

// classify maps a database failure onto the shared error kinds so callers
// can decide whether to retry.
func (s *RemoteStore) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if IsTransient(err) {
		return shared.WrapError("sync", op, shared.ErrRemoteUnavailable, "remote store is unavailable", err)
	}
	return shared.WrapError("sync", op, shared.ErrExternalService, "remote store request failed", err)
}
