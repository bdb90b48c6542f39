package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateStreak(t *testing.T) {
	tests := []struct {
		name    string
		current int
		last    string
		today   string
		want    int
	}{
		{"same day is unchanged", 4, "2024-01-15", "2024-01-15", 4},
		{"same day with zero streak", 0, "2024-01-15", "2024-01-15", 0},
		{"yesterday extends", 4, "2024-01-14", "2024-01-15", 5},
		{"yesterday across month", 9, "2024-01-31", "2024-02-01", 10},
		{"two days ago resets", 4, "2024-01-13", "2024-01-15", 1},
		{"long gap resets", 30, "2023-06-01", "2024-01-15", 1},
		{"no previous activity", 0, "", "2024-01-15", 1},
		{"future date resets", 7, "2024-01-16", "2024-01-15", 1},
		{"malformed date resets", 7, "15/01/2024", "2024-01-15", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateStreak(tt.current, tt.last, tt.today))
		})
	}
}

func TestCalculateStreak_Properties(t *testing.T) {
	days := []string{"2024-01-01", "2024-02-29", "2024-12-31", "2025-03-30"}
	for _, d := range days {
		for s := 0; s < 10; s++ {
			assert.Equal(t, s, CalculateStreak(s, d, d))
		}
	}

	assert.Equal(t, 8, CalculateStreak(7, "2024-02-28", "2024-02-29"))
	assert.Equal(t, 1, CalculateStreak(7, "2024-02-27", "2024-02-29"))
}

func TestCalculateWeeklyProgress(t *testing.T) {
	dates := []string{
		"2024-01-14", // previous Sunday
		"2024-01-15",
		"2024-01-15",
		"2024-01-17",
		"2024-01-21", // Sunday, last day of week
		"2024-01-22", // next Monday
	}

	assert.Equal(t, 3, CalculateWeeklyProgress(dates, "2024-01-15"))
	assert.Equal(t, 0, CalculateWeeklyProgress(nil, "2024-01-15"))
	assert.Equal(t, 0, CalculateWeeklyProgress(dates, ""))
}

func TestUpdateMetricsOnEvent_SameDayIsIdempotent(t *testing.T) {
	m := Metrics{WeeklyGoal: NewWeeklyGoal(5, "2024-01-17")}

	m = UpdateMetricsOnEvent(m, "2024-01-17", "2024-01-17")
	assert.Equal(t, 1, m.Streak)
	assert.Equal(t, 1, m.WeeklyGoal.Progress)
	assert.Equal(t, "2024-01-17", m.LastStudyDate)

	for i := 0; i < 3; i++ {
		m = UpdateMetricsOnEvent(m, "2024-01-17", "2024-01-17")
	}
	assert.Equal(t, 1, m.Streak)
	assert.Equal(t, 1, m.WeeklyGoal.Progress)
}

func TestUpdateMetricsOnEvent_NextDayIncrements(t *testing.T) {
	m := Metrics{
		Streak:        2,
		LastStudyDate: "2024-01-16",
		WeeklyGoal:    WeeklyGoal{Type: GoalActiveDays, Target: 5, Progress: 2, WeekStartDate: "2024-01-15"},
	}

	m = UpdateMetricsOnEvent(m, "2024-01-17", "2024-01-17")
	assert.Equal(t, 3, m.Streak)
	assert.Equal(t, 3, m.WeeklyGoal.Progress)
	assert.Equal(t, 5, m.WeeklyGoal.Target)
}

func TestUpdateMetricsOnEvent_NewWeekResets(t *testing.T) {
	m := Metrics{
		Streak:        6,
		LastStudyDate: "2024-01-21",
		WeeklyGoal:    WeeklyGoal{Type: GoalActiveDays, Target: 5, Progress: 6, WeekStartDate: "2024-01-15"},
	}

	m = UpdateMetricsOnEvent(m, "2024-01-22", "2024-01-22")
	assert.Equal(t, 7, m.Streak)
	assert.Equal(t, 1, m.WeeklyGoal.Progress)
	assert.Equal(t, "2024-01-22", m.WeeklyGoal.WeekStartDate)
}

func TestRecalculateMetrics_DuplicatesCollapse(t *testing.T) {
	m := RecalculateMetrics([]string{"2024-01-15", "2024-01-15", "2024-01-15"}, "2024-01-15")

	assert.Equal(t, 1, m.Streak)
	assert.Equal(t, 1, m.WeeklyGoal.Progress)
	assert.Equal(t, "2024-01-15", m.LastStudyDate)
	assert.Equal(t, "2024-01-15", m.WeeklyGoal.WeekStartDate)
}

func TestRecalculateMetrics_Runs(t *testing.T) {
	dates := []string{"2024-01-10", "2024-01-12", "2024-01-13", "2024-01-14"}

	// Run ends yesterday.
	m := RecalculateMetrics(dates, "2024-01-15")
	assert.Equal(t, 3, m.Streak)
	assert.Equal(t, 0, m.WeeklyGoal.Progress)

	// Run ends today.
	m = RecalculateMetrics(append(dates, "2024-01-15"), "2024-01-15")
	assert.Equal(t, 4, m.Streak)
	assert.Equal(t, 1, m.WeeklyGoal.Progress)

	// Gap of two days breaks it.
	m = RecalculateMetrics(dates, "2024-01-16")
	assert.Equal(t, 0, m.Streak)
	assert.Equal(t, "2024-01-14", m.LastStudyDate)
}

func TestRecalculateMetrics_Empty(t *testing.T) {
	m := RecalculateMetrics(nil, "2024-01-15")
	assert.Equal(t, 0, m.Streak)
	assert.Equal(t, "", m.LastStudyDate)
	assert.Equal(t, 0, m.WeeklyGoal.Progress)
}

func TestDedupeDates(t *testing.T) {
	got := DedupeDates([]string{"2024-01-03", "bad", "2024-01-01", "2024-01-03"})
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, got)
}

func TestWeeklyGoal_Remaining(t *testing.T) {
	g := WeeklyGoal{Target: 5, Progress: 3}
	assert.Equal(t, 2, g.Remaining())
	assert.False(t, g.IsAchieved())

	g.Progress = 6
	assert.Equal(t, 0, g.Remaining())
	assert.True(t, g.IsAchieved())

	assert.False(t, WeeklyGoal{}.IsAchieved())
}

func TestEffective(t *testing.T) {
	m := Metrics{
		Streak:        4,
		LastStudyDate: "2024-01-19",
		WeeklyGoal:    WeeklyGoal{Type: GoalActiveDays, Target: 5, Progress: 4, WeekStartDate: "2024-01-15"},
	}

	same := Effective(m, "2024-01-20")
	assert.Equal(t, 4, same.Streak)
	assert.Equal(t, 4, same.WeeklyGoal.Progress)

	broken := Effective(m, "2024-01-21")
	assert.Equal(t, 0, broken.Streak)
	assert.Equal(t, 4, broken.WeeklyGoal.Progress)

	nextWeek := Effective(m, "2024-01-22")
	assert.Equal(t, 0, nextWeek.WeeklyGoal.Progress)
	assert.Equal(t, "2024-01-22", nextWeek.WeeklyGoal.WeekStartDate)
	assert.Equal(t, 5, nextWeek.WeeklyGoal.Target)

	assert.Equal(t, 0, Effective(Metrics{Streak: 3}, "2024-01-22").Streak)
}

func TestUpdateMetricsOnEvent_FutureLastStudyDate(t *testing.T) {
	m := Metrics{
		Streak:        3,
		LastStudyDate: "2024-01-19",
		WeeklyGoal:    WeeklyGoal{Type: GoalActiveDays, Target: 5, Progress: 1, WeekStartDate: "2024-01-15"},
	}

	for range 4 {
		m = UpdateMetricsOnEvent(m, "2024-01-17", "2024-01-17")
		assert.Equal(t, 1, m.Streak)
		assert.Equal(t, 1, m.WeeklyGoal.Progress, "repeat calls never add days")
		assert.Equal(t, "2024-01-19", m.LastStudyDate)
	}
}
