// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/habit"
	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HABIT SUMMARY QUERY
// Scores the learner's study habit and picks the nudge shown on the home
// screen, together with the lesson to suggest.
// ══════════════════════════════════════════════════════════════════════════════

// RecentActivityWindow is the trailing window, in days, counted as recent.
const RecentActivityWindow = 7

// GetHabitSummaryQuery contains the parameters of the habit summary.
type GetHabitSummaryQuery struct {
	// Today is the UTC date to evaluate ("YYYY-MM-DD"). Empty means now.
	Today string
}

// Validate checks the query parameters.
func (q GetHabitSummaryQuery) Validate() error {
	if q.Today != "" && !timeutil.IsValidDate(q.Today) {
		return shared.WrapError("habit", "GetHabitSummary", shared.ErrInvalidArgument,
			fmt.Sprintf("invalid date %q", q.Today), nil)
	}
	return nil
}

// HabitSummaryDTO is the habit summary returned to the UI.
type HabitSummaryDTO struct {
	Today            string             `json:"today"`
	RecentActiveDays int                `json:"recentActiveDays"`
	Metrics          metrics.Metrics    `json:"metrics"`
	Score            habit.Score        `json:"score"`
	Intervention     habit.Intervention `json:"intervention"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ProgressReader reads the current progress snapshot.
type ProgressReader interface {
	Snapshot() progress.Progress
}

// LessonRecommender picks the next lesson to suggest.
type LessonRecommender interface {
	Recommend(isCompleted func(lessonID string) bool) (habit.Lesson, bool)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetHabitSummaryHandler handles GetHabitSummaryQuery.
type GetHabitSummaryHandler struct {
	reader  ProgressReader
	lessons LessonRecommender
	log     *logger.Logger
	now     func() time.Time
}

// NewGetHabitSummaryHandler creates a new GetHabitSummaryHandler.
// lessons may be nil, in which case no lesson is suggested.
func NewGetHabitSummaryHandler(reader ProgressReader, lessons LessonRecommender, log *logger.Logger) *GetHabitSummaryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetHabitSummaryHandler{
		reader:  reader,
		lessons: lessons,
		log:     log.With(logger.Component("habit_summary")),
		now:     timeutil.Now,
	}
}

// Handle executes the query.
func (h *GetHabitSummaryHandler) Handle(ctx context.Context, q GetHabitSummaryQuery) (*HabitSummaryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_habit_summary: %w", err)
	}
	today := q.Today
	if today == "" {
		today = timeutil.UTCDateString(h.now())
	}

	p := h.reader.Snapshot()
	m := metrics.Effective(p.Metrics(), today)
	recent := habit.CountRecentActiveDays(p.StudyDates, today, RecentActivityWindow)
	score := habit.NewScore(recent, m.Streak, m.WeeklyGoal.Progress, m.WeeklyGoal.Target)

	var lesson *habit.Lesson
	if h.lessons != nil {
		if l, ok := h.lessons.Recommend(p.IsLessonCompleted); ok {
			lesson = &l
		}
	}

	intervention := habit.SelectIntervention(habit.Input{
		Today:   today,
		Metrics: m,
		Score:   score,
		Lesson:  lesson,
	})

	h.log.Debug("habit summary computed",
		logger.String("today", today),
		logger.String("state", string(score.State)),
		logger.String("intervention", string(intervention.Type)),
	)

	return &HabitSummaryDTO{
		Today:            today,
		RecentActiveDays: recent,
		Metrics:          m,
		Score:            score,
		Intervention:     intervention,
	}, nil
}
