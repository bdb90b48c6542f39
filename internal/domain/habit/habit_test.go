package habit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
)

func TestBuildHabitScore(t *testing.T) {
	assert.Equal(t, 100.0, BuildHabitScore(7, 7, 5, 5))
	assert.Equal(t, 0.0, BuildHabitScore(0, 0, 0, 5))
	assert.Equal(t, 80.0, BuildHabitScore(7, 7, 0, 0))
	assert.Equal(t, 100.0, BuildHabitScore(30, 50, 9, 5), "inputs above caps add nothing")
	assert.Equal(t, 0.0, BuildHabitScore(-3, -1, -2, 5), "negative inputs count as zero")
	assert.InDelta(t, 50.0, BuildHabitScore(7, 0, 5, 10), 1e-9)
}

func TestBuildHabitScore_Bounded(t *testing.T) {
	for recent := -2; recent <= 10; recent++ {
		for streak := -2; streak <= 10; streak++ {
			for progress := -1; progress <= 8; progress++ {
				for target := -1; target <= 7; target++ {
					s := BuildHabitScore(recent, streak, progress, target)
					assert.GreaterOrEqual(t, s, 0.0)
					assert.LessOrEqual(t, s, 100.0)
				}
			}
		}
	}
}

func TestWeightsSumTo100(t *testing.T) {
	assert.Equal(t, 100.0, RecentActivityWeight+StreakWeight+WeeklyWeight)
}

func TestGetHabitState(t *testing.T) {
	tests := []struct {
		score float64
		want  State
	}{
		{100, StateStable},
		{80, StateStable},
		{79.99, StateWarning},
		{50, StateWarning},
		{49.99, StateDanger},
		{0, StateDanger},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GetHabitState(tt.score), "score %v", tt.score)
	}
}

func TestNewScore(t *testing.T) {
	s := NewScore(7, 7, 5, 5)
	assert.Equal(t, 100.0, s.Value)
	assert.Equal(t, StateStable, s.State)
	assert.Equal(t, Components{RecentActivityScore: 40, StreakScore: 40, WeeklyScore: 20}, s.Components)
}

func TestCountRecentActiveDays(t *testing.T) {
	dates := []string{
		"2024-01-08", // outside the 7-day window
		"2024-01-09",
		"2024-01-12",
		"2024-01-12",
		"2024-01-15",
		"2024-01-16", // after today
		"garbage",
	}

	assert.Equal(t, 3, CountRecentActiveDays(dates, "2024-01-15", 7))
	assert.Equal(t, 1, CountRecentActiveDays(dates, "2024-01-15", 1))
	assert.Equal(t, 0, CountRecentActiveDays(dates, "2024-01-15", 0))
	assert.Equal(t, 0, CountRecentActiveDays(nil, "2024-01-15", 7))
}

func TestDeriveStreakReason(t *testing.T) {
	assert.Equal(t, StreakNoActivityYet, DeriveStreakReason("", "2024-01-15"))
	assert.Equal(t, StreakActiveToday, DeriveStreakReason("2024-01-15", "2024-01-15"))
	assert.Equal(t, StreakActiveToday, DeriveStreakReason("2024-01-16", "2024-01-15"))
	assert.Equal(t, StreakActiveYesterday, DeriveStreakReason("2024-01-14", "2024-01-15"))
	assert.Equal(t, StreakBroken, DeriveStreakReason("2024-01-10", "2024-01-15"))
}

func TestDeriveWeeklyReason(t *testing.T) {
	goal := func(target, progress int) metrics.WeeklyGoal {
		return metrics.WeeklyGoal{Type: metrics.GoalActiveDays, Target: target, Progress: progress, WeekStartDate: "2024-01-15"}
	}

	assert.Equal(t, WeeklyNoGoal, DeriveWeeklyReason(goal(0, 3), "2024-01-17"))
	assert.Equal(t, WeeklyAchieved, DeriveWeeklyReason(goal(5, 5), "2024-01-17"))
	// Monday: nothing is expected yet.
	assert.Equal(t, WeeklyOnTrack, DeriveWeeklyReason(goal(5, 0), "2024-01-15"))
	// Thursday: floor(5*3/7) = 2 expected.
	assert.Equal(t, WeeklyBehind, DeriveWeeklyReason(goal(5, 1), "2024-01-18"))
	assert.Equal(t, WeeklyOnTrack, DeriveWeeklyReason(goal(5, 2), "2024-01-18"))
	// Sunday: floor(5*6/7) = 4 expected.
	assert.Equal(t, WeeklyBehind, DeriveWeeklyReason(goal(5, 3), "2024-01-21"))
}

func TestSelectUrgency_DecisionTable(t *testing.T) {
	streaks := []StreakReason{StreakNoActivityYet, StreakActiveToday, StreakActiveYesterday, StreakBroken}
	weeklies := []WeeklyReason{WeeklyNoGoal, WeeklyOnTrack, WeeklyBehind, WeeklyAchieved}

	for _, s := range streaks {
		for _, w := range weeklies {
			for _, count := range []int{0, 3} {
				got := SelectUrgency(s, w, count)

				var want Urgency
				switch {
				case w == WeeklyBehind:
					want = UrgencyHigh
				case s == StreakActiveYesterday && count > 0:
					want = UrgencyHigh
				case s == StreakActiveToday:
					want = UrgencyMedium
				default:
					want = UrgencyLow
				}
				assert.Equal(t, want, got, "streak=%s weekly=%s count=%d", s, w, count)
			}
		}
	}
}

func TestSelectUrgency_ActiveTodayAchievedIsMedium(t *testing.T) {
	assert.Equal(t, UrgencyMedium, SelectUrgency(StreakActiveToday, WeeklyAchieved, 4))
}

func TestSelectType(t *testing.T) {
	assert.Equal(t, InterventionWeeklyCatchup, SelectType(UrgencyHigh, StreakActiveYesterday, WeeklyBehind, StateWarning))
	assert.Equal(t, InterventionStreakRescue, SelectType(UrgencyHigh, StreakActiveYesterday, WeeklyOnTrack, StateStable))
	assert.Equal(t, InterventionNone, SelectType(UrgencyMedium, StreakActiveToday, WeeklyOnTrack, StateDanger))
	assert.Equal(t, InterventionNone, SelectType(UrgencyMedium, StreakActiveToday, WeeklyOnTrack, StateWarning))
	assert.Equal(t, InterventionPositive, SelectType(UrgencyMedium, StreakActiveToday, WeeklyOnTrack, StateStable))
	assert.Equal(t, InterventionPositive, SelectType(UrgencyLow, StreakBroken, WeeklyAchieved, StateDanger))
	assert.Equal(t, InterventionNone, SelectType(UrgencyLow, StreakBroken, WeeklyOnTrack, StateDanger))
}

func minutes(n int) *int {
	return &n
}

func TestSelectIntervention_WeeklyCatchup(t *testing.T) {
	lesson := &Lesson{ID: "l2", Title: "変数", EstimatedMinutes: minutes(5), Unlocked: true}
	in := Input{
		Today: "2024-01-19",
		Metrics: metrics.Metrics{
			Streak:        1,
			LastStudyDate: "2024-01-18",
			WeeklyGoal:    metrics.WeeklyGoal{Target: 5, Progress: 1, WeekStartDate: "2024-01-15"},
		},
		Score:  NewScore(1, 1, 1, 5),
		Lesson: lesson,
	}

	got := SelectIntervention(in)
	assert.Equal(t, InterventionWeeklyCatchup, got.Type)
	assert.Equal(t, UrgencyHigh, got.Urgency)
	assert.Equal(t, CTAWeeklyCatchup, got.CTAText)
	assert.Equal(t, "今週の目標まであと4日", got.Headline)
	assert.Contains(t, got.Reason, "5分")
	assert.Equal(t, lesson, got.Lesson)
}

func TestSelectIntervention_StreakRescue(t *testing.T) {
	in := Input{
		Today: "2024-01-16",
		Metrics: metrics.Metrics{
			Streak:        4,
			LastStudyDate: "2024-01-15",
			WeeklyGoal:    metrics.WeeklyGoal{Target: 5, Progress: 1, WeekStartDate: "2024-01-15"},
		},
		Score: NewScore(4, 4, 1, 5),
	}

	got := SelectIntervention(in)
	assert.Equal(t, InterventionStreakRescue, got.Type)
	assert.Equal(t, CTAStreakRescue, got.CTAText)
	assert.Equal(t, "4日連続の記録が途切れそうです", got.Headline)
}

func TestSelectIntervention_PositiveHasNoCTA(t *testing.T) {
	in := Input{
		Today: "2024-01-19",
		Metrics: metrics.Metrics{
			Streak:        5,
			LastStudyDate: "2024-01-19",
			WeeklyGoal:    metrics.WeeklyGoal{Target: 5, Progress: 5, WeekStartDate: "2024-01-15"},
		},
		Score:  NewScore(5, 5, 5, 5),
		Lesson: &Lesson{ID: "l1", Title: "関数", EstimatedMinutes: minutes(10), Unlocked: true},
	}

	got := SelectIntervention(in)
	assert.Equal(t, InterventionPositive, got.Type)
	assert.Equal(t, UrgencyMedium, got.Urgency)
	assert.False(t, got.HasCTA())
	assert.Equal(t, "今週の目標を達成しました", got.Headline)
}

func TestSelectIntervention_IsDeterministic(t *testing.T) {
	in := Input{
		Today:   "2024-01-20",
		Metrics: metrics.Metrics{Streak: 0, LastStudyDate: "2024-01-10", WeeklyGoal: metrics.WeeklyGoal{WeekStartDate: "2024-01-15"}},
		Lesson:  &Lesson{ID: "l1", Title: "入門", EstimatedMinutes: minutes(8), Unlocked: true},
	}

	first := SelectIntervention(in)
	assert.Equal(t, first, SelectIntervention(in))
	assert.Equal(t, InterventionNone, first.Type)
	assert.Equal(t, "8分のレッスンを始める", first.CTAText)
}

func TestSelectIntervention_ActiveTodayInDangerIsNotPositive(t *testing.T) {
	in := Input{
		Today: "2024-01-15",
		Metrics: metrics.Metrics{
			Streak:        1,
			LastStudyDate: "2024-01-15",
			WeeklyGoal:    metrics.WeeklyGoal{Target: 5, Progress: 1, WeekStartDate: "2024-01-15"},
		},
		Score:  NewScore(1, 1, 1, 5),
		Lesson: &Lesson{ID: "l1", Title: "関数", EstimatedMinutes: minutes(10), Unlocked: true},
	}
	require.Equal(t, StateDanger, in.Score.State)

	got := SelectIntervention(in)
	assert.Equal(t, WeeklyOnTrack, got.WeeklyReason)
	assert.Equal(t, UrgencyMedium, got.Urgency)
	assert.Equal(t, InterventionNone, got.Type)
	assert.Equal(t, "今日の学習を続けましょう", got.Headline)
	assert.Equal(t, "10分のレッスンを始める", got.CTAText)
}

func TestIntervention_JSON(t *testing.T) {
	data, err := json.Marshal(Intervention{Type: InterventionPositive, Urgency: UrgencyLow, StreakReason: StreakBroken, WeeklyReason: WeeklyAchieved})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"streakReason":"BROKEN"`)
	assert.Contains(t, string(data), `"weeklyReason":"ACHIEVED"`)
	assert.NotContains(t, string(data), "ctaText")
}

func TestShortestAvailableLesson(t *testing.T) {
	lessons := []Lesson{
		{ID: "a", EstimatedMinutes: minutes(15), Unlocked: true},
		{ID: "b", Unlocked: true},
		{ID: "c", EstimatedMinutes: minutes(5), Unlocked: false},
		{ID: "d", EstimatedMinutes: minutes(10), Unlocked: true},
		{ID: "e", EstimatedMinutes: minutes(10), Unlocked: true},
		{ID: "f", EstimatedMinutes: minutes(3), Unlocked: true},
	}
	completed := map[string]bool{"f": true}
	isCompleted := func(id string) bool { return completed[id] }

	got, ok := ShortestAvailableLesson(lessons, isCompleted)
	require.True(t, ok)
	assert.Equal(t, "d", got.ID, "tie keeps catalog order")

	got, ok = ShortestAvailableLesson([]Lesson{{ID: "x", Unlocked: true}, {ID: "y", EstimatedMinutes: minutes(60), Unlocked: true}}, nil)
	require.True(t, ok)
	assert.Equal(t, "y", got.ID, "lesson without duration never beats one with")

	got, ok = ShortestAvailableLesson([]Lesson{{ID: "x", Unlocked: true}}, nil)
	require.True(t, ok)
	assert.Equal(t, "x", got.ID)

	_, ok = ShortestAvailableLesson([]Lesson{{ID: "x", Unlocked: false}}, nil)
	assert.False(t, ok)
}
