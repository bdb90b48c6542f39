package notes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnsync/internal/domain/shared"
)

type memoryRepo struct {
	stored Collection
	saves  int
}

func (m *memoryRepo) SaveNotes(_ context.Context, _ string, c Collection) error {
	m.stored = c
	m.saves++
	return nil
}

func (m *memoryRepo) LoadNotes(_ context.Context, _ string) (Collection, error) {
	if m.stored == nil {
		return Collection{}, nil
	}
	return m.stored.Clone(), nil
}

func TestBook_UpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	book, err := OpenBook(ctx, "user-1", repo, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	first, err := book.Upsert(ctx, "intro", "# draft")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(now))

	now = now.Add(time.Hour)
	second, err := book.Upsert(ctx, "intro", "# final")
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))
	assert.True(t, second.UpdatedAt.Equal(now))
	assert.Equal(t, "# final", repo.stored["intro"].Markdown)
	assert.Equal(t, 2, repo.saves)
}

func TestBook_Delete(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	book := NewBook("user-1", Collection{}, repo)

	_, err := book.Upsert(ctx, "intro", "text")
	require.NoError(t, err)

	require.NoError(t, book.Delete(ctx, "intro"))
	_, ok := book.Get("intro")
	assert.False(t, ok)
	assert.Empty(t, repo.stored)

	assert.ErrorIs(t, book.Delete(ctx, "intro"), shared.ErrNotFound)
}

func TestBook_RejectsEmptyLesson(t *testing.T) {
	book := NewBook("user-1", nil, nil)
	_, err := book.Upsert(context.Background(), "", "text")
	assert.ErrorIs(t, err, shared.ErrEmptyLessonID)
}

func TestBook_ReplaceNormalizes(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	book := NewBook("user-1", nil, repo)

	jst := time.FixedZone("JST", 9*60*60)
	require.NoError(t, book.Replace(ctx, Collection{
		"b":  {Markdown: "b", UpdatedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, jst)},
		"a":  {LessonID: "wrong", Markdown: "a"},
		"  ": {Markdown: "dropped"},
	}))

	all := book.All()
	assert.Equal(t, []string{"a", "b"}, all.LessonIDs())
	assert.Equal(t, "a", all["a"].LessonID)
	assert.Equal(t, time.UTC, all["b"].UpdatedAt.Location())
	assert.Len(t, all.Sorted(), 2)
}

func TestBook_MergeReadsOtherWriters(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	worker, err := OpenBook(ctx, "user-1", repo, clock)
	require.NoError(t, err)
	cli, err := OpenBook(ctx, "user-1", repo, clock)
	require.NoError(t, err)

	_, err = cli.Upsert(ctx, "intro", "# offline")
	require.NoError(t, err)

	merged, err := worker.Merge(ctx, func(current Collection) Collection {
		current["basics"] = Note{Markdown: "from remote", CreatedAt: now, UpdatedAt: now}
		return current
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"basics", "intro"}, merged.LessonIDs())
	assert.Equal(t, []string{"basics", "intro"}, repo.stored.LessonIDs())
	assert.Equal(t, "basics", repo.stored["basics"].LessonID)

	_, err = cli.Upsert(ctx, "extra", "later")
	require.NoError(t, err)
	require.NoError(t, worker.Reload(ctx))
	_, ok := worker.Get("extra")
	assert.True(t, ok)
}
