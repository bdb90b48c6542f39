// Package progress contains the Progress aggregate and the Store that owns
// one user's snapshot. Every mutation goes through the Store, which applies
// the metrics engine and persists the whole snapshot afterwards.
// This is a pure domain layer with zero external dependencies.
package progress

import (
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/internal/domain/shared"
)

// LessonProgress records when a lesson was first opened and, once done,
// when it was completed. CompletedAt is never before OpenedAt.
type LessonProgress struct {
	LessonID    string     `json:"lessonId"`
	OpenedAt    time.Time  `json:"openedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// IsCompleted reports whether the lesson has a completion timestamp.
func (l LessonProgress) IsCompleted() bool {
	return l.CompletedAt != nil
}

// QuestionResult is the outcome of a single quiz question.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Answer     string `json:"answer,omitempty"`
}

// QuizAttempt is one submitted run through a quiz.
// (QuizID, AttemptedAt) identifies an attempt when merging.
type QuizAttempt struct {
	QuizID         string           `json:"quizId"`
	AttemptedAt    time.Time        `json:"attemptedAt"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"totalQuestions"`
	PerQuestion    []QuestionResult `json:"perQuestion"`
	TimeTakenSec   *int             `json:"timeTakenSec,omitempty"`
}

// Key returns the identity used to deduplicate attempts.
func (a QuizAttempt) Key() string {
	return a.QuizID + "|" + a.AttemptedAt.UTC().Format(time.RFC3339Nano)
}

// Validate checks the attempt before it enters a snapshot.
func (a QuizAttempt) Validate() error {
	if strings.TrimSpace(a.QuizID) == "" {
		return shared.ErrEmptyQuizID
	}
	if a.AttemptedAt.IsZero() {
		return shared.WrapError("progress", "RecordQuizAttempt", shared.ErrInvalidArgument, "attempt time is required", shared.ErrInvalidAttempt)
	}
	if a.Score < 0 || a.TotalQuestions < 0 {
		return shared.WrapError("progress", "RecordQuizAttempt", shared.ErrNegativeValue, "score and question count must be non-negative", shared.ErrInvalidAttempt)
	}
	if a.Score > a.TotalQuestions {
		return shared.WrapError("progress", "RecordQuizAttempt", shared.ErrInvalidArgument, "score exceeds question count", shared.ErrInvalidAttempt)
	}
	if a.TimeTakenSec != nil && *a.TimeTakenSec < 0 {
		return shared.WrapError("progress", "RecordQuizAttempt", shared.ErrNegativeValue, "time taken must be non-negative", shared.ErrInvalidAttempt)
	}
	return nil
}

// Progress is the root aggregate of one user's learning activity.
//
// StudyDates holds no duplicates and stays sorted. Streak and WeeklyGoal are
// cached values derivable from StudyDates and LastStudyDate.
type Progress struct {
	Lessons            map[string]LessonProgress `json:"lessons"`
	CompletedQuizzes   []string                  `json:"completedQuizzes"`
	CompletedExercises []string                  `json:"completedExercises"`
	Streak             int                       `json:"streak"`
	LastStudyDate      string                    `json:"lastStudyDate,omitempty"`
	StudyDates         []string                  `json:"studyDates"`
	QuizAttempts       []QuizAttempt             `json:"quizAttempts"`
	WeeklyGoal         metrics.WeeklyGoal        `json:"weeklyGoal"`
}

// Empty returns the initial value of a snapshot.
func Empty() Progress {
	return Progress{
		Lessons:            map[string]LessonProgress{},
		CompletedQuizzes:   []string{},
		CompletedExercises: []string{},
		StudyDates:         []string{},
		QuizAttempts:       []QuizAttempt{},
		WeeklyGoal:         metrics.WeeklyGoal{Type: metrics.GoalActiveDays},
	}
}

// IsEmpty reports whether the snapshot carries no activity at all.
func (p Progress) IsEmpty() bool {
	return len(p.Lessons) == 0 &&
		len(p.CompletedQuizzes) == 0 &&
		len(p.CompletedExercises) == 0 &&
		len(p.StudyDates) == 0 &&
		len(p.QuizAttempts) == 0 &&
		p.Streak == 0 &&
		p.LastStudyDate == ""
}

// Clone returns a deep copy that shares no memory with p.
func (p Progress) Clone() Progress {
	out := p
	out.Lessons = make(map[string]LessonProgress, len(p.Lessons))
	for id, l := range p.Lessons {
		if l.CompletedAt != nil {
			at := *l.CompletedAt
			l.CompletedAt = &at
		}
		out.Lessons[id] = l
	}
	out.CompletedQuizzes = append([]string{}, p.CompletedQuizzes...)
	out.CompletedExercises = append([]string{}, p.CompletedExercises...)
	out.StudyDates = append([]string{}, p.StudyDates...)
	out.QuizAttempts = make([]QuizAttempt, 0, len(p.QuizAttempts))
	for _, a := range p.QuizAttempts {
		a.PerQuestion = append([]QuestionResult(nil), a.PerQuestion...)
		if a.TimeTakenSec != nil {
			v := *a.TimeTakenSec
			a.TimeTakenSec = &v
		}
		out.QuizAttempts = append(out.QuizAttempts, a)
	}
	return out
}

// Normalize returns a copy with nil collections replaced, sets sorted and
// deduplicated, lesson keys aligned with their records and times in UTC.
func (p Progress) Normalize() Progress {
	out := p.Clone()

	lessons := make(map[string]LessonProgress, len(out.Lessons))
	for id, l := range out.Lessons {
		if strings.TrimSpace(id) == "" {
			continue
		}
		l.LessonID = id
		l.OpenedAt = l.OpenedAt.UTC()
		if l.CompletedAt != nil {
			at := l.CompletedAt.UTC()
			if at.Before(l.OpenedAt) {
				at = l.OpenedAt
			}
			l.CompletedAt = &at
		}
		lessons[id] = l
	}
	out.Lessons = lessons

	out.CompletedQuizzes = SortedSet(out.CompletedQuizzes)
	out.CompletedExercises = SortedSet(out.CompletedExercises)
	out.StudyDates = metrics.DedupeDates(out.StudyDates)

	for i := range out.QuizAttempts {
		out.QuizAttempts[i].AttemptedAt = out.QuizAttempts[i].AttemptedAt.UTC()
	}
	if out.Streak < 0 {
		out.Streak = 0
	}
	if out.WeeklyGoal.Type == "" {
		out.WeeklyGoal.Type = metrics.GoalActiveDays
	}
	return out
}

// Metrics returns the cached metric fields of the snapshot.
func (p Progress) Metrics() metrics.Metrics {
	return metrics.Metrics{
		Streak:        p.Streak,
		LastStudyDate: p.LastStudyDate,
		WeeklyGoal:    p.WeeklyGoal,
	}
}

func (p *Progress) applyMetrics(m metrics.Metrics) {
	p.Streak = m.Streak
	p.LastStudyDate = m.LastStudyDate
	p.WeeklyGoal = m.WeeklyGoal
}

// ══════════════════════════════════════════════════════════════════════════════
// READ PROJECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// IsLessonCompleted reports whether the lesson has been completed.
func (p Progress) IsLessonCompleted(lessonID string) bool {
	l, ok := p.Lessons[lessonID]
	return ok && l.IsCompleted()
}

// IsLessonOpened reports whether the lesson has been opened at least once.
func (p Progress) IsLessonOpened(lessonID string) bool {
	_, ok := p.Lessons[lessonID]
	return ok
}

// CompletedLessonsCount returns the number of completed lessons.
func (p Progress) CompletedLessonsCount() int {
	n := 0
	for _, l := range p.Lessons {
		if l.IsCompleted() {
			n++
		}
	}
	return n
}

// TotalLessonsOpened returns the number of lessons with any progress.
func (p Progress) TotalLessonsOpened() int {
	return len(p.Lessons)
}

// CompletedLessonIDs returns the completed lesson ids in sorted order.
func (p Progress) CompletedLessonIDs() []string {
	ids := make([]string, 0, len(p.Lessons))
	for id, l := range p.Lessons {
		if l.IsCompleted() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SortedSet returns the non-empty values deduplicated and sorted.
func SortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// insertSorted adds value to a sorted set, reporting whether it was absent.
func insertSorted(set []string, value string) ([]string, bool) {
	i := sort.SearchStrings(set, value)
	if i < len(set) && set[i] == value {
		return set, false
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = value
	return set, true
}
