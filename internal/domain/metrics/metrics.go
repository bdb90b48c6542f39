// Package metrics derives time-based learning metrics from study dates:
// streak transitions, weekly-goal progress and full rebuilds after a merge.
//
// Every function is pure. Dates are "YYYY-MM-DD" strings in UTC, and "today"
// is always passed in by the caller, so nothing here reads the clock.
package metrics

import (
	"sort"

	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// GoalType names what a weekly goal counts.
type GoalType string

const (
	// GoalActiveDays counts distinct active days within the ISO week.
	GoalActiveDays GoalType = "active_days"
)

// DefaultWeeklyTarget is the number of active days a new weekly goal asks for.
const DefaultWeeklyTarget = 5

// WeeklyGoal tracks active days within the current ISO week (Monday to Sunday, UTC).
type WeeklyGoal struct {
	Type          GoalType `json:"type"`
	Target        int      `json:"target"`
	Progress      int      `json:"progress"`
	WeekStartDate string   `json:"weekStartDate"`
}

// NewWeeklyGoal returns an empty goal for the week containing today.
func NewWeeklyGoal(target int, today string) WeeklyGoal {
	if target < 0 {
		target = 0
	}
	return WeeklyGoal{
		Type:          GoalActiveDays,
		Target:        target,
		WeekStartDate: timeutil.WeekStartOf(today),
	}
}

// Remaining returns how many more active days the goal needs.
func (g WeeklyGoal) Remaining() int {
	if g.Progress >= g.Target {
		return 0
	}
	return g.Target - g.Progress
}

// IsAchieved reports whether a positive target has been reached.
func (g WeeklyGoal) IsAchieved() bool {
	return g.Target > 0 && g.Progress >= g.Target
}

// Metrics is the cached, derivable part of a progress snapshot.
type Metrics struct {
	Streak        int        `json:"streak"`
	LastStudyDate string     `json:"lastStudyDate,omitempty"`
	WeeklyGoal    WeeklyGoal `json:"weeklyGoal"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// CalculateStreak returns the streak after activity on today.
//
//   - lastActivityDate == today: unchanged (repeat call on the same day).
//   - lastActivityDate == today-1: current + 1.
//   - empty, older, malformed or in the future (clock skew): 1.
func CalculateStreak(current int, lastActivityDate, today string) int {
	if lastActivityDate == "" {
		return 1
	}

	days, ok := timeutil.DaysBetween(lastActivityDate, today)
	if !ok {
		return 1
	}

	switch days {
	case 0:
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// CalculateWeeklyProgress counts distinct dates in [weekStart, weekStart+6d].
func CalculateWeeklyProgress(dates []string, weekStart string) int {
	if !timeutil.IsValidDate(weekStart) {
		return 0
	}
	weekEnd := timeutil.AddDays(weekStart, 6)

	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if d < weekStart || d > weekEnd || !timeutil.IsValidDate(d) {
			continue
		}
		seen[d] = struct{}{}
	}
	return len(seen)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT UPDATE & REBUILD
// ══════════════════════════════════════════════════════════════════════════════

// UpdateMetricsOnEvent applies one study event to the cached metrics.
//
// The streak moves by CalculateStreak against today. When today falls in a
// different ISO week than the stored goal, the goal restarts at 1 for the new
// week. Otherwise only an event after the last study date adds a day; a
// date at or before it may already be counted, including a last study date
// in the future from a skewed clock. Callers holding the study dates repair
// progress with CalculateWeeklyProgress.
func UpdateMetricsOnEvent(current Metrics, eventDate, today string) Metrics {
	next := current
	next.Streak = CalculateStreak(current.Streak, current.LastStudyDate, today)

	weekStart := timeutil.WeekStartOf(today)
	if current.WeeklyGoal.Type == "" {
		next.WeeklyGoal.Type = GoalActiveDays
	}

	switch {
	case weekStart != current.WeeklyGoal.WeekStartDate:
		next.WeeklyGoal.WeekStartDate = weekStart
		next.WeeklyGoal.Progress = 1
	case eventDate > current.LastStudyDate && timeutil.WeekStartOf(eventDate) == weekStart:
		next.WeeklyGoal.Progress = current.WeeklyGoal.Progress + 1
	}

	next.LastStudyDate = timeutil.MaxDate(current.LastStudyDate, eventDate)
	return next
}

// RecalculateMetrics rebuilds streak, last study date and weekly progress from
// a list of dates. Duplicates collapse. The streak is the run of consecutive
// days ending at today or yesterday, and 0 when neither is present.
// The returned goal carries no target; callers keep their own.
func RecalculateMetrics(allDates []string, today string) Metrics {
	dates := DedupeDates(allDates)

	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}

	cursor := today
	if _, ok := set[cursor]; !ok {
		cursor = timeutil.AddDays(today, -1)
	}

	streak := 0
	for {
		if _, ok := set[cursor]; !ok {
			break
		}
		streak++
		cursor = timeutil.AddDays(cursor, -1)
	}

	last := ""
	if len(dates) > 0 {
		last = dates[len(dates)-1]
	}

	weekStart := timeutil.WeekStartOf(today)
	return Metrics{
		Streak:        streak,
		LastStudyDate: last,
		WeeklyGoal: WeeklyGoal{
			Type:          GoalActiveDays,
			Progress:      CalculateWeeklyProgress(dates, weekStart),
			WeekStartDate: weekStart,
		},
	}
}

// Effective returns the metrics as they read on today without recording
// activity: a streak whose last day is older than yesterday shows 0, and a
// goal from a past week shows no progress for the current one.
func Effective(m Metrics, today string) Metrics {
	out := m

	if m.LastStudyDate != "" {
		if days, ok := timeutil.DaysBetween(m.LastStudyDate, today); !ok || days > 1 {
			out.Streak = 0
		}
	} else {
		out.Streak = 0
	}

	weekStart := timeutil.WeekStartOf(today)
	if m.WeeklyGoal.WeekStartDate != weekStart {
		out.WeeklyGoal.WeekStartDate = weekStart
		out.WeeklyGoal.Progress = 0
	}
	return out
}

// DedupeDates returns the valid dates of the input, deduplicated and sorted.
func DedupeDates(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if !timeutil.IsValidDate(d) {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
