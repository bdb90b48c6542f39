package habit

import (
	"fmt"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REASON CODES
// ══════════════════════════════════════════════════════════════════════════════

// StreakReason describes where the learner's streak stands today.
type StreakReason int

const (
	StreakNoActivityYet StreakReason = iota
	StreakActiveToday
	StreakActiveYesterday
	StreakBroken
)

var streakReasonNames = [...]string{
	StreakNoActivityYet:   "NO_ACTIVITY_YET",
	StreakActiveToday:     "ACTIVE_TODAY",
	StreakActiveYesterday: "ACTIVE_YESTERDAY",
	StreakBroken:          "BROKEN",
}

func (r StreakReason) String() string {
	if r < 0 || int(r) >= len(streakReasonNames) {
		return fmt.Sprintf("StreakReason(%d)", int(r))
	}
	return streakReasonNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r StreakReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// WeeklyReason describes where the learner stands against the weekly goal.
type WeeklyReason int

const (
	WeeklyNoGoal WeeklyReason = iota
	WeeklyOnTrack
	WeeklyBehind
	WeeklyAchieved
)

var weeklyReasonNames = [...]string{
	WeeklyNoGoal:   "NO_GOAL",
	WeeklyOnTrack:  "ON_TRACK",
	WeeklyBehind:   "BEHIND",
	WeeklyAchieved: "ACHIEVED",
}

func (r WeeklyReason) String() string {
	if r < 0 || int(r) >= len(weeklyReasonNames) {
		return fmt.Sprintf("WeeklyReason(%d)", int(r))
	}
	return weeklyReasonNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r WeeklyReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Urgency ranks how pressing an intervention is.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// InterventionType is the kind of nudge shown to the learner.
type InterventionType string

const (
	InterventionNone          InterventionType = "none"
	InterventionStreakRescue  InterventionType = "STREAK_RESCUE"
	InterventionWeeklyCatchup InterventionType = "WEEKLY_CATCHUP"
	InterventionPositive      InterventionType = "POSITIVE"
)

// Call-to-action labels.
const (
	CTAWeeklyCatchup = "今週分を取り戻す"
	CTAStreakRescue  = "5分だけ学習する"
)

// DeriveStreakReason classifies the last study date relative to today.
// A last study date after today (clock skew) counts as active today.
func DeriveStreakReason(lastStudyDate, today string) StreakReason {
	if lastStudyDate == "" {
		return StreakNoActivityYet
	}
	days, ok := timeutil.DaysBetween(lastStudyDate, today)
	switch {
	case !ok:
		return StreakNoActivityYet
	case days <= 0:
		return StreakActiveToday
	case days == 1:
		return StreakActiveYesterday
	default:
		return StreakBroken
	}
}

// DeriveWeeklyReason classifies goal progress on today. The learner is
// behind when progress is below the share of the target expected for the
// days of the week already over: floor(target * daysBeforeToday / 7).
func DeriveWeeklyReason(goal metrics.WeeklyGoal, today string) WeeklyReason {
	switch {
	case goal.Target <= 0:
		return WeeklyNoGoal
	case goal.Progress >= goal.Target:
		return WeeklyAchieved
	}

	expected := goal.Target * timeutil.DaysIntoWeek(today) / 7
	if goal.Progress < expected {
		return WeeklyBehind
	}
	return WeeklyOnTrack
}

// ══════════════════════════════════════════════════════════════════════════════
// DECISION TABLE
// ══════════════════════════════════════════════════════════════════════════════

// SelectUrgency applies the precedence rules:
//
//  1. weekly BEHIND is always high
//  2. ACTIVE_YESTERDAY with a live streak is high
//  3. ACTIVE_TODAY is medium, even when the weekly goal is achieved
//  4. everything else is low
func SelectUrgency(streak StreakReason, weekly WeeklyReason, currentStreak int) Urgency {
	if weekly == WeeklyBehind {
		return UrgencyHigh
	}

	switch streak {
	case StreakActiveYesterday:
		if currentStreak > 0 {
			return UrgencyHigh
		}
		return UrgencyLow
	case StreakActiveToday:
		return UrgencyMedium
	case StreakBroken, StreakNoActivityYet:
		return UrgencyLow
	default:
		panic(fmt.Sprintf("habit: unhandled streak reason %v", streak))
	}
}

// SelectType maps urgency and reasons to an intervention type. High urgency
// driven by the weekly goal is a catch-up, otherwise a streak rescue. Lower
// urgency turns positive only in the stable state or with the weekly goal met.
// Studying today alone is not enough.
func SelectType(urgency Urgency, streak StreakReason, weekly WeeklyReason, state State) InterventionType {
	switch urgency {
	case UrgencyHigh:
		if weekly == WeeklyBehind {
			return InterventionWeeklyCatchup
		}
		return InterventionStreakRescue
	case UrgencyMedium, UrgencyLow:
		if state == StateStable || weekly == WeeklyAchieved {
			return InterventionPositive
		}
		return InterventionNone
	default:
		panic(fmt.Sprintf("habit: unhandled urgency %q", urgency))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTION
// ══════════════════════════════════════════════════════════════════════════════

// Intervention is the nudge surfaced to the learner.
type Intervention struct {
	Type         InterventionType `json:"type"`
	Urgency      Urgency          `json:"urgency"`
	StreakReason StreakReason     `json:"streakReason"`
	WeeklyReason WeeklyReason     `json:"weeklyReason"`
	Headline     string           `json:"headline"`
	Reason       string           `json:"reason"`
	CTAText      string           `json:"ctaText,omitempty"`
	Lesson       *Lesson          `json:"lesson,omitempty"`
}

// HasCTA reports whether the intervention carries a call to action.
func (i Intervention) HasCTA() bool {
	return i.CTAText != ""
}

// Input is everything the selector needs. Metrics should be the effective
// metrics for Today.
type Input struct {
	Today   string
	Metrics metrics.Metrics
	Score   Score
	Lesson  *Lesson
}

// SelectIntervention derives the intervention for the given input.
func SelectIntervention(in Input) Intervention {
	streak := DeriveStreakReason(in.Metrics.LastStudyDate, in.Today)
	weekly := DeriveWeeklyReason(in.Metrics.WeeklyGoal, in.Today)
	urgency := SelectUrgency(streak, weekly, in.Metrics.Streak)
	kind := SelectType(urgency, streak, weekly, in.Score.State)

	out := Intervention{
		Type:         kind,
		Urgency:      urgency,
		StreakReason: streak,
		WeeklyReason: weekly,
		Lesson:       in.Lesson,
	}
	out.Headline, out.Reason, out.CTAText = compose(kind, streak, weekly, in.Metrics.Streak, in.Metrics.WeeklyGoal.Remaining(), in.Lesson)
	return out
}

// compose renders headline, reason and CTA. It is a pure function of its
// arguments.
func compose(kind InterventionType, streak StreakReason, weekly WeeklyReason, streakCount, remaining int, lesson *Lesson) (headline, reason, cta string) {
	suggestion := lessonSuggestion(lesson)

	switch kind {
	case InterventionWeeklyCatchup:
		headline = fmt.Sprintf("今週の目標まであと%d日", remaining)
		reason = "今週の学習ペースが目標より遅れています。" + suggestion
		cta = CTAWeeklyCatchup

	case InterventionStreakRescue:
		headline = fmt.Sprintf("%d日連続の記録が途切れそうです", streakCount)
		reason = fmt.Sprintf("今日学習すれば%d日連続になります。", streakCount+1) + suggestion
		cta = CTAStreakRescue

	case InterventionPositive:
		switch {
		case weekly == WeeklyAchieved:
			headline = "今週の目標を達成しました"
			reason = "この調子で続けていきましょう。"
		case streak == StreakActiveToday && streakCount > 1:
			headline = fmt.Sprintf("%d日連続で学習中です", streakCount)
			reason = "今日の学習も記録されました。"
		default:
			headline = "今日も学習できました"
			reason = "積み重ねが力になります。"
		}

	case InterventionNone:
		switch streak {
		case StreakBroken:
			headline = "また一緒に始めましょう"
		case StreakNoActivityYet:
			headline = "最初のレッスンを始めましょう"
		case StreakActiveToday:
			headline = "今日の学習を続けましょう"
		default:
			headline = "今日の学習を始めましょう"
		}
		reason = suggestion
		if lesson != nil {
			cta = lessonCTA(lesson)
		}

	default:
		panic(fmt.Sprintf("habit: unhandled intervention type %q", kind))
	}
	return headline, reason, cta
}

func lessonSuggestion(lesson *Lesson) string {
	switch {
	case lesson == nil:
		return "短い時間でも学習を記録しましょう。"
	case lesson.HasDuration():
		return fmt.Sprintf("「%s」なら%d分で終わります。", lesson.Title, lesson.Minutes())
	default:
		return fmt.Sprintf("「%s」から始めてみましょう。", lesson.Title)
	}
}

func lessonCTA(lesson *Lesson) string {
	if lesson.HasDuration() {
		return fmt.Sprintf("%d分のレッスンを始める", lesson.Minutes())
	}
	return "レッスンを始める"
}
