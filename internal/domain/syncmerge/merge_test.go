package syncmerge

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
)

var base = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestUnionSet(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, UnionSet([]string{"c", "a"}, []string{"b", "a", ""}))
	assert.Equal(t, []string{}, UnionSet(nil, nil))
}

func TestMaxScalarAndLatestDate(t *testing.T) {
	assert.Equal(t, 5, MaxScalar(5, 3))
	assert.Equal(t, 5, MaxScalar(3, 5))
	assert.Equal(t, "2025-01-05", LatestDate("2025-01-05", "2025-01-03"))
	assert.Equal(t, "2025-01-03", LatestDate("", "2025-01-03"))
	assert.Equal(t, "", LatestDate("", ""))
}

func TestMostRecentWins(t *testing.T) {
	assert.Equal(t, "remote", MostRecentWins("local", at(0), "remote", at(1)))
	assert.Equal(t, "local", MostRecentWins("local", at(1), "remote", at(0)))
	assert.Equal(t, "local", MostRecentWins("local", at(1), "remote", at(1)))
}

func TestMergeProgress_StreakAndLastStudyDate(t *testing.T) {
	local := progress.Empty()
	local.Streak = 5
	local.LastStudyDate = "2025-01-05"

	remote := progress.Empty()
	remote.Streak = 3
	remote.LastStudyDate = "2025-01-03"

	merged := MergeProgress(local, remote)
	assert.Equal(t, 5, merged.Streak)
	assert.Equal(t, "2025-01-05", merged.LastStudyDate)

	merged = MergeProgress(remote, local)
	assert.Equal(t, 5, merged.Streak)
	assert.Equal(t, "2025-01-05", merged.LastStudyDate)
}

func TestMergeProgress_Sets(t *testing.T) {
	local := progress.Empty()
	local.CompletedQuizzes = []string{"q1", "q3"}
	local.CompletedExercises = []string{"e1"}
	local.StudyDates = []string{"2025-01-03", "2025-01-01"}

	remote := progress.Empty()
	remote.CompletedQuizzes = []string{"q2", "q1"}
	remote.StudyDates = []string{"2025-01-02", "2025-01-03"}

	merged := MergeProgress(local, remote)
	assert.Equal(t, []string{"q1", "q2", "q3"}, merged.CompletedQuizzes)
	assert.Equal(t, []string{"e1"}, merged.CompletedExercises)
	assert.Equal(t, []string{"2025-01-01", "2025-01-02", "2025-01-03"}, merged.StudyDates)
}

func TestResolveLesson(t *testing.T) {
	opened := progress.LessonProgress{LessonID: "l", OpenedAt: at(0)}
	completedLate := progress.LessonProgress{LessonID: "l", OpenedAt: at(5), CompletedAt: ptr(at(30))}
	completedEarly := progress.LessonProgress{LessonID: "l", OpenedAt: at(10), CompletedAt: ptr(at(20))}
	completedEarlySameTime := progress.LessonProgress{LessonID: "l", OpenedAt: at(2), CompletedAt: ptr(at(20))}

	tests := []struct {
		name   string
		local  progress.LessonProgress
		remote progress.LessonProgress
		want   progress.LessonProgress
	}{
		{"remote completed beats local open", opened, completedLate, completedLate},
		{"local completed beats remote open", completedLate, opened, completedLate},
		{"earliest completion wins", completedLate, completedEarly, completedEarly},
		{"earliest completion wins reversed", completedEarly, completedLate, completedEarly},
		{"equal completion falls back to earliest open", completedEarly, completedEarlySameTime, completedEarlySameTime},
		{"both open earliest open wins", progress.LessonProgress{LessonID: "l", OpenedAt: at(9)}, opened, opened},
		{"full tie keeps local", completedEarly, completedEarly, completedEarly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLesson(tt.local, tt.remote))
		})
	}
}

func TestMergeProgress_Lessons(t *testing.T) {
	local := progress.Empty()
	local.Lessons["a"] = progress.LessonProgress{LessonID: "a", OpenedAt: at(0)}
	local.Lessons["b"] = progress.LessonProgress{LessonID: "b", OpenedAt: at(0)}

	remote := progress.Empty()
	remote.Lessons["a"] = progress.LessonProgress{LessonID: "a", OpenedAt: at(1), CompletedAt: ptr(at(5))}
	remote.Lessons["c"] = progress.LessonProgress{LessonID: "c", OpenedAt: at(3)}

	merged := MergeProgress(local, remote)
	require.Len(t, merged.Lessons, 3)
	assert.True(t, merged.IsLessonCompleted("a"))
	assert.True(t, merged.IsLessonOpened("b"))
	assert.True(t, merged.IsLessonOpened("c"))
}

func TestMergeQuizAttempts_Dedup(t *testing.T) {
	local := []progress.QuizAttempt{
		{QuizID: "q1", AttemptedAt: at(10), Score: 4, TotalQuestions: 5},
		{QuizID: "q1", AttemptedAt: at(20), Score: 5, TotalQuestions: 5},
	}
	remote := []progress.QuizAttempt{
		{QuizID: "q1", AttemptedAt: at(10), Score: 1, TotalQuestions: 5},
		{QuizID: "q2", AttemptedAt: at(5), Score: 2, TotalQuestions: 2},
		{QuizID: "q0", AttemptedAt: at(20), Score: 2, TotalQuestions: 2},
	}

	merged := MergeQuizAttempts(local, remote)
	require.Len(t, merged, 4)

	assert.Equal(t, "q2", merged[0].QuizID)
	assert.Equal(t, "q1", merged[1].QuizID)
	assert.Equal(t, 4, merged[1].Score, "local copy kept on key collision")
	assert.Equal(t, "q0", merged[2].QuizID)
	assert.Equal(t, "q1", merged[3].QuizID)
}

func TestMergeQuizAttempts_SameInstantDifferentZone(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	local := []progress.QuizAttempt{{QuizID: "q1", AttemptedAt: at(0)}}
	remote := []progress.QuizAttempt{{QuizID: "q1", AttemptedAt: at(0).In(jst)}}

	assert.Len(t, MergeQuizAttempts(local, remote), 1)
}

func TestResolveWeeklyGoal(t *testing.T) {
	older := metrics.WeeklyGoal{Type: metrics.GoalActiveDays, Target: 5, Progress: 5, WeekStartDate: "2025-01-06"}
	newer := metrics.WeeklyGoal{Type: metrics.GoalActiveDays, Target: 3, Progress: 1, WeekStartDate: "2025-01-13"}

	assert.Equal(t, newer, ResolveWeeklyGoal(older, newer))
	assert.Equal(t, newer, ResolveWeeklyGoal(newer, older))

	sameWeek := metrics.WeeklyGoal{Type: metrics.GoalActiveDays, Target: 4, Progress: 3, WeekStartDate: "2025-01-13"}
	got := ResolveWeeklyGoal(newer, sameWeek)
	assert.Equal(t, 3, got.Progress)
	assert.Equal(t, 3, got.Target)

	got = ResolveWeeklyGoal(metrics.WeeklyGoal{WeekStartDate: "2025-01-13"}, sameWeek)
	assert.Equal(t, 4, got.Target)
}

func TestMergeProgress_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		a := randomProgress(rng)
		b := randomProgress(rng)

		once := MergeProgress(a, b)
		twice := MergeProgress(once, b)
		assert.Equal(t, once, twice, "iteration %d", i)
		assert.Equal(t, once, MergeProgress(once, once), "iteration %d", i)

		assertNoDuplicateAttempts(t, once.QuizAttempts)
	}
}

func TestMergeProgress_CommutativeOnSetFields(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		a := randomProgress(rng)
		b := randomProgress(rng)

		ab := MergeProgress(a, b)
		ba := MergeProgress(b, a)
		assert.Equal(t, ab.CompletedQuizzes, ba.CompletedQuizzes)
		assert.Equal(t, ab.StudyDates, ba.StudyDates)
		assert.Equal(t, ab.Streak, ba.Streak)
		assert.Equal(t, ab.LastStudyDate, ba.LastStudyDate)
		assert.Equal(t, ab.Lessons, ba.Lessons)
		assert.Equal(t, len(ab.QuizAttempts), len(ba.QuizAttempts))
	}
}

func TestHasProgressChanges(t *testing.T) {
	local := progress.Empty()
	assert.False(t, HasProgressChanges(local, nil))

	local.CompletedQuizzes = []string{"q1"}
	assert.True(t, HasProgressChanges(local, nil))

	empty := progress.Empty()
	assert.True(t, HasProgressChanges(local, &empty))

	remote := local.Clone()
	assert.False(t, HasProgressChanges(local, &remote))

	remote.Streak = 2
	assert.True(t, HasProgressChanges(local, &remote))
}

func TestHasProgressChanges_IgnoresRepresentation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)

	local := progress.Empty()
	local.Lessons["a"] = progress.LessonProgress{LessonID: "a", OpenedAt: at(0)}
	local.QuizAttempts = []progress.QuizAttempt{
		{QuizID: "q2", AttemptedAt: at(2)},
		{QuizID: "q1", AttemptedAt: at(1), PerQuestion: []progress.QuestionResult{}},
	}

	remote := progress.Progress{
		Lessons: map[string]progress.LessonProgress{
			"a": {LessonID: "a", OpenedAt: at(0).In(jst)},
		},
		QuizAttempts: []progress.QuizAttempt{
			{QuizID: "q1", AttemptedAt: at(1)},
			{QuizID: "q2", AttemptedAt: at(2).In(jst)},
		},
	}

	assert.False(t, HasProgressChanges(local, &remote))
}

func TestMergeNotes(t *testing.T) {
	local := notes.Collection{
		"a": {LessonID: "a", Markdown: "local a", UpdatedAt: at(10)},
		"b": {LessonID: "b", Markdown: "local b", UpdatedAt: at(10)},
		"c": {LessonID: "c", Markdown: "local c", UpdatedAt: at(10)},
	}
	remote := notes.Collection{
		"a": {LessonID: "a", Markdown: "remote a", UpdatedAt: at(20)},
		"b": {LessonID: "b", Markdown: "remote b", UpdatedAt: at(5)},
		"c": {LessonID: "c", Markdown: "remote c", UpdatedAt: at(10)},
		"d": {LessonID: "d", Markdown: "remote d", UpdatedAt: at(1)},
	}

	merged := MergeNotes(local, remote)
	require.Len(t, merged, 4)
	assert.Equal(t, "remote a", merged["a"].Markdown)
	assert.Equal(t, "local b", merged["b"].Markdown)
	assert.Equal(t, "local c", merged["c"].Markdown)
	assert.Equal(t, "remote d", merged["d"].Markdown)

	assert.Equal(t, merged, MergeNotes(merged, remote))
}

func TestHasNotesChanges(t *testing.T) {
	local := notes.Collection{"a": {LessonID: "a", Markdown: "x", UpdatedAt: at(1)}}

	assert.False(t, HasNotesChanges(notes.Collection{}, nil))
	assert.True(t, HasNotesChanges(local, nil))
	assert.True(t, HasNotesChanges(local, notes.Collection{}))
	assert.False(t, HasNotesChanges(local, local.Clone()))

	changed := local.Clone()
	changed["a"] = notes.Note{LessonID: "a", Markdown: "y", UpdatedAt: at(1)}
	assert.True(t, HasNotesChanges(local, changed))

	extra := local.Clone()
	extra["b"] = notes.Note{LessonID: "b"}
	assert.True(t, HasNotesChanges(local, extra))
}

func randomProgress(rng *rand.Rand) progress.Progress {
	p := progress.Empty()
	lessons := rng.Intn(4)
	for i := 0; i < lessons; i++ {
		id := fmt.Sprintf("lesson-%d", rng.Intn(4))
		l := progress.LessonProgress{LessonID: id, OpenedAt: at(rng.Intn(5))}
		if rng.Intn(2) == 0 {
			l.CompletedAt = ptr(at(5 + rng.Intn(5)))
		}
		p.Lessons[id] = l
	}
	sets := rng.Intn(4)
	for i := 0; i < sets; i++ {
		p.CompletedQuizzes = append(p.CompletedQuizzes, fmt.Sprintf("q%d", rng.Intn(5)))
		p.CompletedExercises = append(p.CompletedExercises, fmt.Sprintf("e%d", rng.Intn(5)))
		p.StudyDates = append(p.StudyDates, fmt.Sprintf("2025-01-%02d", 1+rng.Intn(9)))
	}
	attempts := rng.Intn(5)
	for i := 0; i < attempts; i++ {
		p.QuizAttempts = append(p.QuizAttempts, progress.QuizAttempt{
			QuizID:         fmt.Sprintf("q%d", rng.Intn(3)),
			AttemptedAt:    at(rng.Intn(4)),
			Score:          rng.Intn(5),
			TotalQuestions: 5,
		})
	}
	p.Streak = rng.Intn(10)
	if dates := metrics.DedupeDates(p.StudyDates); len(dates) > 0 {
		p.LastStudyDate = dates[len(dates)-1]
	}
	p.WeeklyGoal = metrics.WeeklyGoal{
		Type:          metrics.GoalActiveDays,
		Target:        rng.Intn(6),
		Progress:      rng.Intn(7),
		WeekStartDate: []string{"2024-12-30", "2025-01-06"}[rng.Intn(2)],
	}
	return p
}

func assertNoDuplicateAttempts(t *testing.T, attempts []progress.QuizAttempt) {
	t.Helper()
	seen := map[string]bool{}
	for _, a := range attempts {
		assert.False(t, seen[a.Key()], "duplicate attempt %s", a.Key())
		seen[a.Key()] = true
	}
}
