package postgres

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/metrics"
	"github.com/alem-hub/learnsync/internal/domain/notes"
	"github.com/alem-hub/learnsync/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS ROW
// ══════════════════════════════════════════════════════════════════════════════

type lessonJSON struct {
	LessonID    string     `json:"lesson_id"`
	OpenedAt    time.Time  `json:"opened_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type questionResultJSON struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
	Answer     string `json:"answer,omitempty"`
}

type quizAttemptJSON struct {
	QuizID         string               `json:"quiz_id"`
	AttemptedAt    time.Time            `json:"attempted_at"`
	Score          int                  `json:"score"`
	TotalQuestions int                  `json:"total_questions"`
	PerQuestion    []questionResultJSON `json:"per_question"`
	TimeTakenSec   *int                 `json:"time_taken_sec,omitempty"`
}

type weeklyGoalJSON struct {
	Type          string `json:"type"`
	Target        int    `json:"target"`
	Progress      int    `json:"progress"`
	WeekStartDate string `json:"week_start_date,omitempty"`
}

// progressRow is a user_progress row as read from the database.
type progressRow struct {
	ID                 string
	UserID             string
	Lessons            []byte
	CompletedQuizzes   []byte
	CompletedExercises []byte
	Streak             int
	LastStudyDate      *string
	StudyDates         []byte
	QuizAttempts       []byte
	WeeklyGoal         []byte
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// progressColumns is the select list matching progressRow.scanTargets.
const progressColumns = `id::text, user_id, lessons, completed_quizzes, completed_exercises,
	streak, last_study_date, study_dates, quiz_attempts, weekly_goal, created_at, updated_at`

func (r *progressRow) scanTargets() []any {
	return []any{
		&r.ID, &r.UserID, &r.Lessons, &r.CompletedQuizzes, &r.CompletedExercises,
		&r.Streak, &r.LastStudyDate, &r.StudyDates, &r.QuizAttempts, &r.WeeklyGoal,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

// ProgressToRow maps a snapshot to the snake-case column values written to
// user_progress. JSON columns are pre-encoded.
func ProgressToRow(userID string, p progress.Progress) (map[string]any, error) {
	p = p.Normalize()

	lessons := make(map[string]lessonJSON, len(p.Lessons))
	for id, l := range p.Lessons {
		lessons[id] = lessonJSON{LessonID: id, OpenedAt: l.OpenedAt, CompletedAt: l.CompletedAt}
	}

	attempts := make([]quizAttemptJSON, 0, len(p.QuizAttempts))
	for _, a := range p.QuizAttempts {
		results := make([]questionResultJSON, 0, len(a.PerQuestion))
		for _, q := range a.PerQuestion {
			results = append(results, questionResultJSON(q))
		}
		attempts = append(attempts, quizAttemptJSON{
			QuizID:         a.QuizID,
			AttemptedAt:    a.AttemptedAt,
			Score:          a.Score,
			TotalQuestions: a.TotalQuestions,
			PerQuestion:    results,
			TimeTakenSec:   a.TimeTakenSec,
		})
	}

	goal := weeklyGoalJSON{
		Type:          string(p.WeeklyGoal.Type),
		Target:        p.WeeklyGoal.Target,
		Progress:      p.WeeklyGoal.Progress,
		WeekStartDate: p.WeeklyGoal.WeekStartDate,
	}

	row := map[string]any{
		"user_id": userID,
		"streak":  p.Streak,
	}
	if p.LastStudyDate != "" {
		row["last_study_date"] = p.LastStudyDate
	} else {
		row["last_study_date"] = nil
	}

	for col, v := range map[string]any{
		"lessons":             lessons,
		"completed_quizzes":   p.CompletedQuizzes,
		"completed_exercises": p.CompletedExercises,
		"study_dates":         p.StudyDates,
		"quiz_attempts":       attempts,
		"weekly_goal":         goal,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", col, err)
		}
		row[col] = raw
	}

	return row, nil
}

// ProgressFromRow maps a user_progress row back to a normalized snapshot.
func ProgressFromRow(r progressRow) (progress.Progress, error) {
	var (
		lessons  map[string]lessonJSON
		attempts []quizAttemptJSON
		goal     weeklyGoalJSON
		p        = progress.Empty()
	)

	columns := []struct {
		name   string
		raw    []byte
		target any
	}{
		{"lessons", r.Lessons, &lessons},
		{"completed_quizzes", r.CompletedQuizzes, &p.CompletedQuizzes},
		{"completed_exercises", r.CompletedExercises, &p.CompletedExercises},
		{"study_dates", r.StudyDates, &p.StudyDates},
		{"quiz_attempts", r.QuizAttempts, &attempts},
		{"weekly_goal", r.WeeklyGoal, &goal},
	}
	for _, c := range columns {
		if len(c.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(c.raw, c.target); err != nil {
			return progress.Progress{}, fmt.Errorf("decode %s: %w", c.name, err)
		}
	}

	for id, l := range lessons {
		p.Lessons[id] = progress.LessonProgress{LessonID: id, OpenedAt: l.OpenedAt, CompletedAt: l.CompletedAt}
	}
	for _, a := range attempts {
		results := make([]progress.QuestionResult, 0, len(a.PerQuestion))
		for _, q := range a.PerQuestion {
			results = append(results, progress.QuestionResult(q))
		}
		p.QuizAttempts = append(p.QuizAttempts, progress.QuizAttempt{
			QuizID:         a.QuizID,
			AttemptedAt:    a.AttemptedAt,
			Score:          a.Score,
			TotalQuestions: a.TotalQuestions,
			PerQuestion:    results,
			TimeTakenSec:   a.TimeTakenSec,
		})
	}

	p.Streak = r.Streak
	if r.LastStudyDate != nil {
		p.LastStudyDate = *r.LastStudyDate
	}
	p.WeeklyGoal = metrics.WeeklyGoal{
		Type:          metrics.GoalType(goal.Type),
		Target:        goal.Target,
		Progress:      goal.Progress,
		WeekStartDate: goal.WeekStartDate,
	}

	return p.Normalize(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTE ROWS
// ══════════════════════════════════════════════════════════════════════════════

// NoteToRow maps a note to the column values written to user_notes. Note
// timestamps travel in created_at and updated_at, which the notes table
// reuses as domain data.
func NoteToRow(userID string, n notes.Note) map[string]any {
	return map[string]any{
		"user_id":    userID,
		"lesson_id":  n.LessonID,
		"markdown":   n.Markdown,
		"created_at": n.CreatedAt.UTC(),
		"updated_at": n.UpdatedAt.UTC(),
	}
}

type noteRow struct {
	LessonID  string
	Markdown  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r noteRow) toNote() notes.Note {
	return notes.Note{
		LessonID:  r.LessonID,
		Markdown:  r.Markdown,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT SQL
// ══════════════════════════════════════════════════════════════════════════════

// buildUpsert renders an INSERT ... ON CONFLICT statement for row. Columns are
// sorted so the statement is stable. guard, when set, is appended as the
// WHERE clause of the update.
func buildUpsert(table string, row map[string]any, conflict []string, touchUpdatedAt bool, guard string) (string, []any) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	isConflict := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		isConflict[c] = true
	}

	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	var sets []string
	for i, c := range cols {
		args = append(args, row[c])
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		if !isConflict[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	if touchUpdatedAt {
		sets = append(sets, "updated_at = NOW()")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(conflict, ", "), strings.Join(sets, ", "))
	if guard != "" {
		query += " WHERE " + guard
	}
	return query, args
}
