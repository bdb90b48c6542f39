package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// Persister saves a whole progress snapshot after every mutation.
type Persister interface {
	SaveProgress(ctx context.Context, userID string, p Progress) error
}

// Loader reads the stored progress snapshot.
type Loader interface {
	// LoadProgress returns the stored snapshot, or the empty value when
	// nothing usable is stored. It never fails on corrupted content.
	LoadProgress(ctx context.Context, userID string) (Progress, error)
}

// Repository loads and saves progress snapshots.
// Implemented by the local snapshot store in the infrastructure layer.
type Repository interface {
	Persister
	Loader
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithWeeklyTarget sets the target applied to snapshots without one.
func WithWeeklyTarget(target int) StoreOption {
	return func(s *Store) {
		if target >= 0 {
			s.weeklyTarget = target
		}
	}
}

// WithPersistErrorHandler registers a callback for failed persist calls.
// A failed persist never rolls back the in-memory snapshot.
func WithPersistErrorHandler(fn func(op string, err error)) StoreOption {
	return func(s *Store) {
		s.onPersistError = fn
	}
}

// Store owns the canonical snapshot of one user's progress.
//
// Mutations are whole-snapshot replacements made under a lock, each followed
// by a persist of the new snapshot. Mutations on the same UTC day with the
// same arguments are idempotent, except RecordQuizAttempt which appends.
type Store struct {
	mu sync.RWMutex

	userID    string
	progress  Progress
	persister Persister
	loader    Loader

	now            func() time.Time
	weeklyTarget   int
	onPersistError func(op string, err error)
}

// NewStore creates a Store around an already loaded snapshot.
func NewStore(userID string, initial Progress, persister Persister, opts ...StoreOption) *Store {
	s := &Store{
		userID:       userID,
		persister:    persister,
		now:          timeutil.Now,
		weeklyTarget: metrics.DefaultWeeklyTarget,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.progress = s.withGoalDefaults(initial.Normalize())
	return s
}

// Open loads the user's snapshot from repo and returns a Store over it.
func Open(ctx context.Context, userID string, repo Repository, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	p, err := repo.LoadProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := NewStore(userID, p, repo, opts...)
	s.loader = repo
	return s, nil
}

// UserID returns the owner of the snapshot.
func (s *Store) UserID() string {
	return s.userID
}

// ══════════════════════════════════════════════════════════════════════════════
// MUTATIONS
// ══════════════════════════════════════════════════════════════════════════════

// MarkLessonOpened creates the lesson record on first open and records
// study activity on every call.
func (s *Store) MarkLessonOpened(ctx context.Context, lessonID string) error {
	if err := shared.ValidateContentID(shared.ContentLesson, lessonID); err != nil {
		return err
	}

	return s.mutate(ctx, "MarkLessonOpened", func(p *Progress, now time.Time) {
		if _, ok := p.Lessons[lessonID]; !ok {
			p.Lessons[lessonID] = LessonProgress{LessonID: lessonID, OpenedAt: now}
		}
	})
}

// CompleteLesson sets the completion time to now, keeping an existing
// openedAt. A lesson never opened is treated as opened now.
func (s *Store) CompleteLesson(ctx context.Context, lessonID string) error {
	if err := shared.ValidateContentID(shared.ContentLesson, lessonID); err != nil {
		return err
	}

	return s.mutate(ctx, "CompleteLesson", func(p *Progress, now time.Time) {
		l, ok := p.Lessons[lessonID]
		if !ok {
			l = LessonProgress{LessonID: lessonID, OpenedAt: now}
		}
		completedAt := now
		if completedAt.Before(l.OpenedAt) {
			completedAt = l.OpenedAt
		}
		l.CompletedAt = &completedAt
		p.Lessons[lessonID] = l
	})
}

// CompleteQuiz adds the quiz to the completed set if absent.
func (s *Store) CompleteQuiz(ctx context.Context, quizID string) error {
	if err := shared.ValidateContentID(shared.ContentQuiz, quizID); err != nil {
		return err
	}

	return s.mutate(ctx, "CompleteQuiz", func(p *Progress, _ time.Time) {
		p.CompletedQuizzes, _ = insertSorted(p.CompletedQuizzes, quizID)
	})
}

// CompleteExercise adds the exercise to the completed set if absent.
func (s *Store) CompleteExercise(ctx context.Context, exerciseID string) error {
	if err := shared.ValidateContentID(shared.ContentExercise, exerciseID); err != nil {
		return err
	}

	return s.mutate(ctx, "CompleteExercise", func(p *Progress, _ time.Time) {
		p.CompletedExercises, _ = insertSorted(p.CompletedExercises, exerciseID)
	})
}

// RecordQuizAttempt appends the attempt unconditionally.
// Duplicate submissions are collapsed only when snapshots are merged.
func (s *Store) RecordQuizAttempt(ctx context.Context, attempt QuizAttempt) error {
	if err := attempt.Validate(); err != nil {
		return err
	}

	attempt.AttemptedAt = attempt.AttemptedAt.UTC()
	attempt.PerQuestion = append([]QuestionResult(nil), attempt.PerQuestion...)
	if attempt.TimeTakenSec != nil {
		v := *attempt.TimeTakenSec
		attempt.TimeTakenSec = &v
	}

	return s.mutate(ctx, "RecordQuizAttempt", func(p *Progress, _ time.Time) {
		p.QuizAttempts = append(p.QuizAttempts, attempt)
	})
}

// ResetProgress replaces the snapshot with the empty initial value.
// This is the only destructive operation.
func (s *Store) ResetProgress(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = s.withGoalDefaults(Empty())
	s.persist(ctx, "ResetProgress")
	return nil
}

// Adopt replaces the snapshot with a merged one and repairs the weekly goal
// from the merged study dates.
func (s *Store) Adopt(ctx context.Context, merged Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adopt(ctx, "Adopt", merged)
	return nil
}

// Reload replaces the in-memory snapshot with the stored one. Other
// processes sharing the local store write to it directly.
// A Store built without a Loader keeps its snapshot.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

// Merge re-reads the stored snapshot, passes a copy to fn and adopts the
// result. Read, merge and adopt happen under one lock.
func (s *Store) Merge(ctx context.Context, fn func(current Progress) Progress) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(ctx); err != nil {
		return Progress{}, err
	}
	s.adopt(ctx, "Merge", fn(s.progress.Clone()))
	return s.progress.Clone(), nil
}

func (s *Store) reload(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	p, err := s.loader.LoadProgress(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("reload progress: %w", err)
	}
	s.progress = s.withGoalDefaults(p.Normalize())
	return nil
}

func (s *Store) adopt(ctx context.Context, op string, merged Progress) {
	next := s.withGoalDefaults(merged.Normalize())
	weekStart := timeutil.WeekStartUTC(s.now())
	next.WeeklyGoal.WeekStartDate = weekStart
	next.WeeklyGoal.Progress = metrics.CalculateWeeklyProgress(next.StudyDates, weekStart)

	s.progress = next
	s.persist(ctx, op)
}

// mutate applies fn to a copy of the snapshot, records study activity for
// the current UTC day, swaps the copy in and persists it.
func (s *Store) mutate(ctx context.Context, op string, fn func(p *Progress, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	next := s.progress.Clone()
	fn(&next, now)
	recordStudyActivity(&next, now)

	s.progress = next
	s.persist(ctx, op)
	return nil
}

// recordStudyActivity updates streak, weekly goal, last study date and the
// study date set for activity at now. Weekly progress is the count of
// distinct study dates in the goal's week.
func recordStudyActivity(p *Progress, now time.Time) {
	today := timeutil.UTCDateString(now)
	p.applyMetrics(metrics.UpdateMetricsOnEvent(p.Metrics(), today, today))
	p.StudyDates, _ = insertSorted(p.StudyDates, today)
	p.WeeklyGoal.Progress = metrics.CalculateWeeklyProgress(p.StudyDates, p.WeeklyGoal.WeekStartDate)
}

func (s *Store) persist(ctx context.Context, op string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveProgress(ctx, s.userID, s.progress.Clone()); err != nil && s.onPersistError != nil {
		s.onPersistError(op, err)
	}
}

func (s *Store) withGoalDefaults(p Progress) Progress {
	if p.WeeklyGoal.Type == "" {
		p.WeeklyGoal.Type = metrics.GoalActiveDays
	}
	if p.WeeklyGoal.Target == 0 {
		p.WeeklyGoal.Target = s.weeklyTarget
	}
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// READ ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot returns a deep copy of the current snapshot.
func (s *Store) Snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.Clone()
}

// Metrics returns the metrics as they read today, without recording activity.
func (s *Store) Metrics() metrics.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return metrics.Effective(s.progress.Metrics(), timeutil.UTCDateString(s.now()))
}

// IsLessonCompleted reports whether the lesson has been completed.
func (s *Store) IsLessonCompleted(lessonID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.IsLessonCompleted(lessonID)
}

// IsLessonOpened reports whether the lesson has been opened.
func (s *Store) IsLessonOpened(lessonID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.IsLessonOpened(lessonID)
}

// CompletedLessonsCount returns the number of completed lessons.
func (s *Store) CompletedLessonsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.CompletedLessonsCount()
}

// TotalLessonsOpened returns the number of lessons with any progress.
func (s *Store) TotalLessonsOpened() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.TotalLessonsOpened()
}

// CompletedLessonIDs returns the completed lesson ids in sorted order.
func (s *Store) CompletedLessonIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress.CompletedLessonIDs()
}
