// Package habit turns progress metrics into a 0-100 engagement score and a
// single intervention for the learner. Everything here is derived on read and
// never persisted.
package habit

import (
	"math"

	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// Score weights. They sum to 100.
const (
	RecentActivityWeight = 40.0
	StreakWeight         = 40.0
	WeeklyWeight         = 20.0

	// ScoreWindowDays caps the recent-activity and streak inputs.
	ScoreWindowDays = 7
)

// Band thresholds, inclusive at the lower edge.
const (
	StableThreshold  = 80.0
	WarningThreshold = 50.0
)

// State is the band a habit score falls into.
type State string

const (
	StateStable  State = "stable"
	StateWarning State = "warning"
	StateDanger  State = "danger"
)

// Components is the per-input breakdown of a score.
type Components struct {
	RecentActivityScore float64 `json:"recentActivityScore"`
	StreakScore         float64 `json:"streakScore"`
	WeeklyScore         float64 `json:"weeklyScore"`
}

// Score is a habit score with its band and breakdown.
type Score struct {
	Value      float64    `json:"score"`
	State      State      `json:"state"`
	Components Components `json:"components"`
}

// BuildHabitScore combines recent activity, streak and weekly progress into
// a value in [0, 100]. Negative inputs count as 0; streak and recent days
// above 7 and progress above target add nothing.
func BuildHabitScore(recentActiveDays, currentStreak, weeklyProgress, weeklyGoalTarget int) float64 {
	c := components(recentActiveDays, currentStreak, weeklyProgress, weeklyGoalTarget)
	return c.RecentActivityScore + c.StreakScore + c.WeeklyScore
}

// NewScore builds the full score with its state and breakdown.
func NewScore(recentActiveDays, currentStreak, weeklyProgress, weeklyGoalTarget int) Score {
	c := components(recentActiveDays, currentStreak, weeklyProgress, weeklyGoalTarget)
	value := c.RecentActivityScore + c.StreakScore + c.WeeklyScore
	return Score{
		Value:      value,
		State:      GetHabitState(value),
		Components: c,
	}
}

func components(recentActiveDays, currentStreak, weeklyProgress, weeklyGoalTarget int) Components {
	recent := float64(clamp(recentActiveDays, 0, ScoreWindowDays)) / ScoreWindowDays
	streak := float64(clamp(currentStreak, 0, ScoreWindowDays)) / ScoreWindowDays

	weekly := 0.0
	if weeklyGoalTarget > 0 {
		weekly = math.Min(float64(max(weeklyProgress, 0))/float64(weeklyGoalTarget), 1)
	}

	return Components{
		RecentActivityScore: recent * RecentActivityWeight,
		StreakScore:         streak * StreakWeight,
		WeeklyScore:         weekly * WeeklyWeight,
	}
}

// GetHabitState maps a score to its band: >= 80 stable, >= 50 warning,
// otherwise danger.
func GetHabitState(score float64) State {
	switch {
	case score >= StableThreshold:
		return StateStable
	case score >= WarningThreshold:
		return StateWarning
	default:
		return StateDanger
	}
}

// CountRecentActiveDays counts distinct valid dates in the trailing window of
// windowDays days ending on today (inclusive). A window below 1 counts nothing.
func CountRecentActiveDays(eventDates []string, today string, windowDays int) int {
	if windowDays < 1 || !timeutil.IsValidDate(today) {
		return 0
	}
	from := timeutil.AddDays(today, -(windowDays - 1))

	seen := make(map[string]struct{}, len(eventDates))
	for _, d := range eventDates {
		if d < from || d > today || !timeutil.IsValidDate(d) {
			continue
		}
		seen[d] = struct{}{}
	}
	return len(seen)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
