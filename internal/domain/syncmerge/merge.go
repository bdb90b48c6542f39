package syncmerge

import (
	"reflect"
	"sort"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// MergeProgress combines a local and a remote snapshot field by field:
//
//   - lessons: key-wise union, conflicts resolved by ResolveLesson
//   - completed quizzes and exercises, study dates: UnionSet
//   - streak: MaxScalar
//   - last study date: LatestDate
//   - quiz attempts: union deduplicated by (quizId, attemptedAt)
//   - weekly goal: ResolveWeeklyGoal
func MergeProgress(local, remote progress.Progress) progress.Progress {
	l := local.Normalize()
	r := remote.Normalize()

	return progress.Progress{
		Lessons:            UnionBy(l.Lessons, r.Lessons, ResolveLesson),
		CompletedQuizzes:   UnionSet(l.CompletedQuizzes, r.CompletedQuizzes),
		CompletedExercises: UnionSet(l.CompletedExercises, r.CompletedExercises),
		Streak:             MaxScalar(l.Streak, r.Streak),
		LastStudyDate:      LatestDate(l.LastStudyDate, r.LastStudyDate),
		StudyDates:         UnionSet(l.StudyDates, r.StudyDates),
		QuizAttempts:       MergeQuizAttempts(l.QuizAttempts, r.QuizAttempts),
		WeeklyGoal:         ResolveWeeklyGoal(l.WeeklyGoal, r.WeeklyGoal),
	}
}

// ResolveLesson picks one of two records for the same lesson.
//
// A completed record beats an incomplete one. Between two completed records
// the earliest completedAt wins, since completion is monotonic; equal
// completion times fall back to the earliest openedAt. Between two incomplete
// records the earliest openedAt wins. Full ties keep the local record.
func ResolveLesson(local, remote progress.LessonProgress) progress.LessonProgress {
	switch {
	case local.IsCompleted() && !remote.IsCompleted():
		return local
	case !local.IsCompleted() && remote.IsCompleted():
		return remote
	case local.IsCompleted() && remote.IsCompleted():
		if !local.CompletedAt.Equal(*remote.CompletedAt) {
			if remote.CompletedAt.Before(*local.CompletedAt) {
				return remote
			}
			return local
		}
	}

	if remote.OpenedAt.Before(local.OpenedAt) {
		return remote
	}
	return local
}

// MergeQuizAttempts unions two attempt lists, keeping the first occurrence
// of every (quizId, attemptedAt) key with local entries ahead of remote ones.
// The result is ordered by attempt time, then quiz id.
func MergeQuizAttempts(local, remote []progress.QuizAttempt) []progress.QuizAttempt {
	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]progress.QuizAttempt, 0, len(local)+len(remote))
	for _, attempts := range [][]progress.QuizAttempt{local, remote} {
		for _, a := range attempts {
			key := a.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AttemptedAt.Equal(out[j].AttemptedAt) {
			return out[i].AttemptedAt.Before(out[j].AttemptedAt)
		}
		return out[i].QuizID < out[j].QuizID
	})
	return out
}

// ResolveWeeklyGoal keeps the goal of the later week. For the same week the
// progress is the maximum of both sides and the target is the local one
// unless only the remote side has a target.
func ResolveWeeklyGoal(local, remote metrics.WeeklyGoal) metrics.WeeklyGoal {
	switch {
	case remote.WeekStartDate > local.WeekStartDate:
		return remote
	case local.WeekStartDate > remote.WeekStartDate:
		return local
	}

	out := local
	out.Progress = MaxScalar(local.Progress, remote.Progress)
	if out.Target <= 0 {
		out.Target = remote.Target
	}
	if out.Type == "" {
		out.Type = remote.Type
	}
	return out
}

// HasProgressChanges reports whether the remote copy differs from the local
// one and therefore needs a push. A missing or empty remote always counts as
// changed when the local snapshot has content.
func HasProgressChanges(local progress.Progress, remote *progress.Progress) bool {
	l := canonicalProgress(local)
	if remote == nil || remote.IsEmpty() {
		return !l.IsEmpty()
	}
	return !reflect.DeepEqual(l, canonicalProgress(*remote))
}

// canonicalProgress drops representation differences that do not change the
// meaning of a snapshot: map/slice nil-ness, time zones and attempt order.
func canonicalProgress(p progress.Progress) progress.Progress {
	n := p.Normalize()
	for id, l := range n.Lessons {
		l.OpenedAt = canonicalTime(l.OpenedAt)
		if l.CompletedAt != nil {
			at := canonicalTime(*l.CompletedAt)
			l.CompletedAt = &at
		}
		n.Lessons[id] = l
	}
	n.QuizAttempts = MergeQuizAttempts(n.QuizAttempts, nil)
	for i := range n.QuizAttempts {
		n.QuizAttempts[i].AttemptedAt = canonicalTime(n.QuizAttempts[i].AttemptedAt)
		if len(n.QuizAttempts[i].PerQuestion) == 0 {
			n.QuizAttempts[i].PerQuestion = nil
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTES
// ══════════════════════════════════════════════════════════════════════════════

// MergeNotes unions two note collections. On a key collision the note with
// the greater updatedAt wins; equal timestamps keep the local note.
func MergeNotes(local, remote notes.Collection) notes.Collection {
	merged := UnionBy(local.Normalize(), remote.Normalize(), ResolveNote)
	return notes.Collection(merged)
}

// ResolveNote picks the more recently updated of two notes for one lesson.
func ResolveNote(local, remote notes.Note) notes.Note {
	return MostRecentWins(local, local.UpdatedAt, remote, remote.UpdatedAt)
}

// HasNotesChanges reports whether the remote collection differs from the
// local one. A missing or empty remote counts as changed when local has notes.
func HasNotesChanges(local, remote notes.Collection) bool {
	if len(remote) == 0 {
		return len(local) > 0
	}
	if len(local) != len(remote) {
		return true
	}
	for id, l := range local {
		r, ok := remote[id]
		if !ok {
			return true
		}
		if l.Markdown != r.Markdown || !l.UpdatedAt.Equal(r.UpdatedAt) || !l.CreatedAt.Equal(r.CreatedAt) {
			return true
		}
	}
	return false
}

// canonicalTime strips the location and monotonic reading so that equal
// instants compare equal with reflect.DeepEqual.
func canonicalTime(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano()).UTC()
}
