// Package notes contains the per-lesson Note entity and the Book that owns
// one user's notes collection.
package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// Note is a markdown note attached to one lesson.
// UpdatedAt decides which side wins when two copies are merged.
type Note struct {
	LessonID  string    `json:"lessonId"`
	Markdown  string    `json:"markdown"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Collection maps lesson ids to notes. One note per lesson.
type Collection map[string]Note

// Clone returns a copy of the collection.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for id, n := range c {
		out[id] = n
	}
	return out
}

// Normalize drops entries with blank keys, aligns LessonID with the key and
// converts timestamps to UTC.
func (c Collection) Normalize() Collection {
	out := make(Collection, len(c))
	for id, n := range c {
		if strings.TrimSpace(id) == "" {
			continue
		}
		n.LessonID = id
		n.CreatedAt = n.CreatedAt.UTC()
		n.UpdatedAt = n.UpdatedAt.UTC()
		out[id] = n
	}
	return out
}

// LessonIDs returns the keys in sorted order.
func (c Collection) LessonIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the notes ordered by lesson id.
func (c Collection) Sorted() []Note {
	out := make([]Note, 0, len(c))
	for _, id := range c.LessonIDs() {
		out = append(out, c[id])
	}
	return out
}

// Persister saves the whole notes collection after every mutation.
type Persister interface {
	SaveNotes(ctx context.Context, userID string, notes Collection) error
}

// Loader reads the stored notes collection.
type Loader interface {
	// LoadNotes returns the stored collection, or an empty one when nothing
	// usable is stored.
	LoadNotes(ctx context.Context, userID string) (Collection, error)
}

// Repository loads and saves notes collections.
type Repository interface {
	Persister
	Loader
}

// BookOption configures a Book.
type BookOption func(*Book)

// WithClock overrides the time source.
func WithClock(now func() time.Time) BookOption {
	return func(b *Book) {
		b.now = now
	}
}

// WithPersistErrorHandler registers a callback for failed persist calls.
func WithPersistErrorHandler(fn func(op string, err error)) BookOption {
	return func(b *Book) {
		b.onPersistError = fn
	}
}

// Book owns one user's notes and persists the collection after every change.
type Book struct {
	mu sync.RWMutex

	userID    string
	notes     Collection
	persister Persister
	loader    Loader

	now            func() time.Time
	onPersistError func(op string, err error)
}

// NewBook creates a Book around an already loaded collection.
func NewBook(userID string, initial Collection, persister Persister, opts ...BookOption) *Book {
	b := &Book{
		userID:    userID,
		notes:     initial.Normalize(),
		persister: persister,
		now:       timeutil.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenBook loads the user's notes from repo and returns a Book over them.
func OpenBook(ctx context.Context, userID string, repo Repository, opts ...BookOption) (*Book, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	c, err := repo.LoadNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	b := NewBook(userID, c, repo, opts...)
	b.loader = repo
	return b, nil
}

// Upsert creates or replaces the note for a lesson. CreatedAt is kept from
// an existing note; UpdatedAt is always now.
func (b *Book) Upsert(ctx context.Context, lessonID, markdown string) (Note, error) {
	if err := shared.ValidateContentID(shared.ContentLesson, lessonID); err != nil {
		return Note{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	n, ok := b.notes[lessonID]
	if !ok {
		n = Note{LessonID: lessonID, CreatedAt: now}
	}
	n.Markdown = markdown
	n.UpdatedAt = now

	next := b.notes.Clone()
	next[lessonID] = n
	b.notes = next
	b.persist(ctx, "Upsert")
	return n, nil
}

// Delete removes the note for a lesson.
func (b *Book) Delete(ctx context.Context, lessonID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.notes[lessonID]; !ok {
		return shared.ErrNoteNotFound
	}
	next := b.notes.Clone()
	delete(next, lessonID)
	b.notes = next
	b.persist(ctx, "Delete")
	return nil
}

// Replace adopts a merged collection wholesale.
func (b *Book) Replace(ctx context.Context, merged Collection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notes = merged.Normalize()
	b.persist(ctx, "Replace")
	return nil
}

// Reload replaces the in-memory collection with the stored one.
// A Book built without a Loader keeps its collection.
func (b *Book) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reload(ctx)
}

// Merge re-reads the stored collection, passes a copy to fn and adopts the
// result. Read, merge and adopt happen under one lock.
func (b *Book) Merge(ctx context.Context, fn func(current Collection) Collection) (Collection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reload(ctx); err != nil {
		return nil, err
	}
	b.notes = fn(b.notes.Clone()).Normalize()
	b.persist(ctx, "Merge")
	return b.notes.Clone(), nil
}

func (b *Book) reload(ctx context.Context) error {
	if b.loader == nil {
		return nil
	}
	c, err := b.loader.LoadNotes(ctx, b.userID)
	if err != nil {
		return fmt.Errorf("reload notes: %w", err)
	}
	b.notes = c.Normalize()
	return nil
}

// Get returns the note for a lesson.
func (b *Book) Get(lessonID string) (Note, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.notes[lessonID]
	return n, ok
}

// All returns a copy of the collection.
func (b *Book) All() Collection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notes.Clone()
}

func (b *Book) persist(ctx context.Context, op string) {
	if b.persister == nil {
		return
	}
	if err := b.persister.SaveNotes(ctx, b.userID, b.notes.Clone()); err != nil && b.onPersistError != nil {
		b.onPersistError(op, err)
	}
}
