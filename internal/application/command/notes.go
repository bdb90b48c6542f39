package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// SaveNoteCommand creates or replaces the note of one lesson.
type SaveNoteCommand struct {
	LessonID string
	Markdown string
}

// DeleteNoteCommand removes the note of one lesson.
type DeleteNoteCommand struct {
	LessonID string
}

// NoteHandler handles note commands.
type NoteHandler struct {
	book *notes.Book
	log  *logger.Logger
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(book *notes.Book, log *logger.Logger) *NoteHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &NoteHandler{book: book, log: log.With(logger.Component("notes"))}
}

// Save executes SaveNoteCommand.
func (h *NoteHandler) Save(ctx context.Context, cmd SaveNoteCommand) (notes.Note, error) {
	n, err := h.book.Upsert(ctx, cmd.LessonID, cmd.Markdown)
	if err != nil {
		return notes.Note{}, fmt.Errorf("save_note: %w", err)
	}
	h.log.Debug("note saved", logger.LessonID(cmd.LessonID), logger.Int("bytes", len(cmd.Markdown)))
	return n, nil
}

// Delete executes DeleteNoteCommand.
func (h *NoteHandler) Delete(ctx context.Context, cmd DeleteNoteCommand) error {
	if err := h.book.Delete(ctx, cmd.LessonID); err != nil {
		return fmt.Errorf("delete_note: %w", err)
	}
	h.log.Debug("note deleted", logger.LessonID(cmd.LessonID))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET PROGRESS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ResetProgressCommand wipes the local progress snapshot.
type ResetProgressCommand struct {
	// IncludeNotes also clears every note.
	IncludeNotes bool

	// CorrelationID for tracing.
	CorrelationID string
}

// ResetProgressHandler handles the ResetProgressCommand.
type ResetProgressHandler struct {
	store          *progress.Store
	book           *notes.Book
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	now            func() time.Time
}

// NewResetProgressHandler creates a new ResetProgressHandler.
func NewResetProgressHandler(store *progress.Store, book *notes.Book, eventPublisher shared.EventPublisher, log *logger.Logger) *ResetProgressHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResetProgressHandler{
		store:          store,
		book:           book,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("reset_progress")),
		now:            timeutil.Now,
	}
}

// Handle executes the reset. It cannot be undone.
func (h *ResetProgressHandler) Handle(ctx context.Context, cmd ResetProgressCommand) error {
	if err := h.store.ResetProgress(ctx); err != nil {
		return fmt.Errorf("reset_progress: %w", err)
	}
	if cmd.IncludeNotes && h.book != nil {
		if err := h.book.Replace(ctx, notes.Collection{}); err != nil {
			return fmt.Errorf("reset_progress: clear notes: %w", err)
		}
	}

	event := shared.NewProgressResetEvent(h.store.UserID(), h.now())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish reset event", logger.UserID(h.store.UserID()), logger.Err(err))
	}

	h.log.Info("progress reset",
		logger.UserID(h.store.UserID()),
		logger.Bool("include_notes", cmd.IncludeNotes),
	)
	return nil
}
