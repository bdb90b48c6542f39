package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS OVERVIEW QUERY
// Lesson counts and metrics for the progress screen.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressOverviewQuery contains the parameters of the overview.
type GetProgressOverviewQuery struct {
	// Today is the UTC date to evaluate ("YYYY-MM-DD"). Empty means now.
	Today string

	// IncludeLessonIDs adds the sorted completed lesson ids.
	IncludeLessonIDs bool
}

// ProgressOverviewDTO is the progress overview returned to the UI.
type ProgressOverviewDTO struct {
	Today               string             `json:"today"`
	LessonsOpened       int                `json:"lessonsOpened"`
	LessonsCompleted    int                `json:"lessonsCompleted"`
	QuizzesCompleted    int                `json:"quizzesCompleted"`
	ExercisesCompleted  int                `json:"exercisesCompleted"`
	QuizAttempts        int                `json:"quizAttempts"`
	Streak              int                `json:"streak"`
	LastStudyDate       string             `json:"lastStudyDate,omitempty"`
	WeeklyGoal          metrics.WeeklyGoal `json:"weeklyGoal"`
	WeeklyRemaining     int                `json:"weeklyRemaining"`
	CompletedLessonIDs  []string           `json:"completedLessonIds,omitempty"`
	HasAnyStudyActivity bool               `json:"hasAnyStudyActivity"`
}

// GetProgressOverviewHandler handles GetProgressOverviewQuery.
type GetProgressOverviewHandler struct {
	reader ProgressReader
	log    *logger.Logger
	now    func() time.Time
}

// NewGetProgressOverviewHandler creates a new GetProgressOverviewHandler.
func NewGetProgressOverviewHandler(reader ProgressReader, log *logger.Logger) *GetProgressOverviewHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressOverviewHandler{
		reader: reader,
		log:    log.With(logger.Component("progress_overview")),
		now:    timeutil.Now,
	}
}

// Handle executes the query.
func (h *GetProgressOverviewHandler) Handle(_ context.Context, q GetProgressOverviewQuery) (*ProgressOverviewDTO, error) {
	if err := (GetHabitSummaryQuery{Today: q.Today}).Validate(); err != nil {
		return nil, fmt.Errorf("get_progress_overview: %w", err)
	}
	today := q.Today
	if today == "" {
		today = timeutil.UTCDateString(h.now())
	}

	p := h.reader.Snapshot()
	m := metrics.Effective(p.Metrics(), today)

	dto := &ProgressOverviewDTO{
		Today:               today,
		LessonsOpened:       p.TotalLessonsOpened(),
		LessonsCompleted:    p.CompletedLessonsCount(),
		QuizzesCompleted:    len(p.CompletedQuizzes),
		ExercisesCompleted:  len(p.CompletedExercises),
		QuizAttempts:        len(p.QuizAttempts),
		Streak:              m.Streak,
		LastStudyDate:       m.LastStudyDate,
		WeeklyGoal:          m.WeeklyGoal,
		WeeklyRemaining:     m.WeeklyGoal.Remaining(),
		HasAnyStudyActivity: !p.IsEmpty(),
	}
	if q.IncludeLessonIDs {
		dto.CompletedLessonIDs = p.CompletedLessonIDs()
	}

	h.log.Debug("progress overview computed",
		logger.Int("lessons_opened", dto.LessonsOpened),
		logger.Int("lessons_completed", dto.LessonsCompleted),
		logger.StreakDays(dto.Streak),
	)
	return dto, nil
}
