package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
)

func TestNoteHandler_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(nil)
	h := NewNoteHandler(book, nil)

	n, err := h.Save(ctx, SaveNoteCommand{LessonID: "l1", Markdown: "# intro"})
	require.NoError(t, err)
	assert.Equal(t, "# intro", n.Markdown)
	assert.Equal(t, testNow, n.UpdatedAt)

	got, ok := book.Get("l1")
	require.True(t, ok)
	assert.Equal(t, n, got)

	require.NoError(t, h.Delete(ctx, DeleteNoteCommand{LessonID: "l1"}))
	_, ok = book.Get("l1")
	assert.False(t, ok)

	err = h.Delete(ctx, DeleteNoteCommand{LessonID: "l1"})
	assert.ErrorIs(t, err, shared.ErrNoteNotFound)
	assert.Contains(t, err.Error(), "delete_note:")
}

func TestNoteHandler_SaveRejectsEmptyLesson(t *testing.T) {
	h := NewNoteHandler(newTestBook(nil), nil)

	_, err := h.Save(context.Background(), SaveNoteCommand{LessonID: "", Markdown: "x"})
	assert.ErrorIs(t, err, shared.ErrEmptyLessonID)
}

func TestResetProgressHandler(t *testing.T) {
	ctx := context.Background()

	seed := func() (*progress.Store, *notes.Book) {
		store := newTestStore(progress.Empty())
		require.NoError(t, store.CompleteLesson(ctx, "l1"))
		book := newTestBook(notes.Collection{"l1": {LessonID: "l1", Markdown: "keep", CreatedAt: testNow, UpdatedAt: testNow}})
		return store, book
	}

	t.Run("progress only", func(t *testing.T) {
		store, book := seed()
		pub := &capturePublisher{}
		h := NewResetProgressHandler(store, book, pub, nil)

		require.NoError(t, h.Handle(ctx, ResetProgressCommand{CorrelationID: "corr-r"}))

		assert.True(t, store.Snapshot().IsEmpty())
		assert.Equal(t, 0, store.Metrics().Streak)
		assert.Len(t, book.All(), 1)

		require.Len(t, pub.events, 1)
		ev, ok := pub.events[0].(shared.ProgressResetEvent)
		require.True(t, ok)
		assert.Equal(t, "corr-r", ev.CorrelationID)
		assert.Equal(t, "u1", ev.AggregateId)
	})

	t.Run("with notes", func(t *testing.T) {
		store, book := seed()
		h := NewResetProgressHandler(store, book, nil, nil)

		require.NoError(t, h.Handle(ctx, ResetProgressCommand{IncludeNotes: true}))
		assert.True(t, store.Snapshot().IsEmpty())
		assert.Empty(t, book.All())
	})
}
