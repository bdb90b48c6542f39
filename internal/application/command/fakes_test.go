package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/internal/domain/syncmerge"
)

var testNow = time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestStore(initial progress.Progress) *progress.Store {
	return progress.NewStore("u1", initial, nil, progress.WithClock(fixedClock))
}

func newTestBook(initial notes.Collection) *notes.Book {
	return notes.NewBook("u1", initial, nil, notes.WithClock(fixedClock))
}

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type captureRecorder struct {
	mu       sync.Mutex
	study    []string
	outcomes []string
	retries  []string
	breaker  map[string]int
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{breaker: map[string]int{}}
}

func (r *captureRecorder) IncStudyEvent(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.study = append(r.study, kind)
}

func (r *captureRecorder) ObserveSync(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *captureRecorder) IncRemoteRetry(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, op)
}

func (r *captureRecorder) SetBreakerState(name string, state int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breaker[name] = state
}

// fakeRemote serves a fixed snapshot and records upserts. fetchErrs and
// upsertErrs are consumed one per call before the call succeeds.
type fakeRemote struct {
	mu         sync.Mutex
	snap       syncmerge.Snapshot
	fetchErrs  []error
	upsertErrs []error

	fetches int
	upserts int

	pushedProgress *progress.Progress
	pushedNotes    notes.Collection

	// block, when set, holds Fetch until it is closed.
	block chan struct{}
}

func (r *fakeRemote) Fetch(ctx context.Context, _ string) (syncmerge.Snapshot, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return syncmerge.Snapshot{}, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return syncmerge.Snapshot{}, err
	}
	return r.snap, nil
}

func (r *fakeRemote) Upsert(_ context.Context, _ string, p progress.Progress, n notes.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if len(r.upsertErrs) > 0 {
		err := r.upsertErrs[0]
		r.upsertErrs = r.upsertErrs[1:]
		return err
	}
	pushed := p.Clone()
	r.pushedProgress = &pushed
	r.pushedNotes = n.Clone()
	r.snap = syncmerge.Snapshot{Progress: &pushed, Notes: n.Clone()}
	return nil
}

var errPlain = errors.New("boom")

// sharedRepo stands in for the local store shared by several processes.
type sharedRepo struct {
	mu       sync.Mutex
	progress *progress.Progress
	notes    notes.Collection
}

func (r *sharedRepo) SaveProgress(_ context.Context, _ string, p progress.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := p.Clone()
	r.progress = &saved
	return nil
}

func (r *sharedRepo) LoadProgress(_ context.Context, _ string) (progress.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress == nil {
		return progress.Empty(), nil
	}
	return r.progress.Clone(), nil
}

func (r *sharedRepo) SaveNotes(_ context.Context, _ string, c notes.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = c.Clone()
	return nil
}

func (r *sharedRepo) LoadNotes(_ context.Context, _ string) (notes.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes.Clone(), nil
}
