// Package command contains write operations (CQRS - Commands).
// Commands are the only way the event source changes a learner's progress.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/logger"
	"github.com/alem-hub/learnsync/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD STUDY EVENT COMMAND
// Applies one study event from the event source to the progress store.
// ══════════════════════════════════════════════════════════════════════════════

// StudyEventKind defines the type of study event being recorded.
type StudyEventKind string

const (
	// StudyLessonOpened - the learner opened a lesson.
	StudyLessonOpened StudyEventKind = "lesson_opened"

	// StudyLessonCompleted - the learner finished a lesson.
	StudyLessonCompleted StudyEventKind = "lesson_completed"

	// StudyQuizCompleted - the learner passed a quiz.
	StudyQuizCompleted StudyEventKind = "quiz_completed"

	// StudyExerciseCompleted - the learner solved an exercise.
	StudyExerciseCompleted StudyEventKind = "exercise_completed"

	// StudyQuizAttempted - the learner submitted a quiz attempt.
	StudyQuizAttempted StudyEventKind = "quiz_attempted"
)

// RecordStudyEventCommand contains one study event.
type RecordStudyEventCommand struct {
	// Kind is the type of study event.
	Kind StudyEventKind

	// TargetID is the lesson, quiz or exercise id. For quiz attempts it may
	// be left empty and is taken from the attempt.
	TargetID string

	// Attempt is required for StudyQuizAttempted and ignored otherwise.
	Attempt *progress.QuizAttempt

	// CorrelationID for tracing.
	CorrelationID string
}

func invalidEvent(message string, err error) error {
	return shared.WrapError("progress", "RecordStudyEvent", shared.ErrInvalidArgument, message, err)
}

// Validate checks the command before anything touches the snapshot.
func (c RecordStudyEventCommand) Validate() error {
	switch c.Kind {
	case StudyLessonOpened, StudyLessonCompleted:
		return shared.ValidateContentID(shared.ContentLesson, c.TargetID)
	case StudyQuizCompleted:
		return shared.ValidateContentID(shared.ContentQuiz, c.TargetID)
	case StudyExerciseCompleted:
		return shared.ValidateContentID(shared.ContentExercise, c.TargetID)
	case StudyQuizAttempted:
		if c.Attempt == nil {
			return invalidEvent("quiz attempt is required", shared.ErrInvalidAttempt)
		}
		if err := c.Attempt.Validate(); err != nil {
			return err
		}
		if c.TargetID != "" && c.TargetID != c.Attempt.QuizID {
			return invalidEvent(fmt.Sprintf("target %q does not match attempt quiz %q", c.TargetID, c.Attempt.QuizID), shared.ErrInvalidAttempt)
		}
		return nil
	case "":
		return invalidEvent("event kind is required", nil)
	default:
		return invalidEvent(fmt.Sprintf("unknown event kind: %s", c.Kind), nil)
	}
}

func (c RecordStudyEventCommand) target() string {
	if c.Kind == StudyQuizAttempted && c.TargetID == "" {
		return c.Attempt.QuizID
	}
	return strings.TrimSpace(c.TargetID)
}

// RecordStudyEventResult contains the metrics after the event was applied.
type RecordStudyEventResult struct {
	Kind           StudyEventKind
	TargetID       string
	Streak         int
	LastStudyDate  string
	WeeklyProgress int
	WeeklyTarget   int
	RecordedAt     time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// StudyEventRecorder counts recorded study events.
type StudyEventRecorder interface {
	IncStudyEvent(kind string)
}

type nopRecorder struct{}

func (nopRecorder) IncStudyEvent(string)              {}
func (nopRecorder) ObserveSync(string, time.Duration) {}
func (nopRecorder) IncRemoteRetry(string)             {}
func (nopRecorder) SetBreakerState(string, int)       {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordStudyEventHandler handles the RecordStudyEventCommand.
type RecordStudyEventHandler struct {
	store          *progress.Store
	eventPublisher shared.EventPublisher
	recorder       StudyEventRecorder
	log            *logger.Logger
	now            func() time.Time
}

// NewRecordStudyEventHandler creates a new RecordStudyEventHandler.
func NewRecordStudyEventHandler(
	store *progress.Store,
	eventPublisher shared.EventPublisher,
	recorder StudyEventRecorder,
	log *logger.Logger,
) *RecordStudyEventHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &RecordStudyEventHandler{
		store:          store,
		eventPublisher: eventPublisher,
		recorder:       recorder,
		log:            log.With(logger.Component("record_study_event")),
		now:            timeutil.Now,
	}
}

// Handle executes the record study event command.
func (h *RecordStudyEventHandler) Handle(ctx context.Context, cmd RecordStudyEventCommand) (*RecordStudyEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_study_event: validation failed: %w", err)
	}

	target := cmd.target()
	var err error
	switch cmd.Kind {
	case StudyLessonOpened:
		err = h.store.MarkLessonOpened(ctx, target)
	case StudyLessonCompleted:
		err = h.store.CompleteLesson(ctx, target)
	case StudyQuizCompleted:
		err = h.store.CompleteQuiz(ctx, target)
	case StudyExerciseCompleted:
		err = h.store.CompleteExercise(ctx, target)
	case StudyQuizAttempted:
		err = h.store.RecordQuizAttempt(ctx, *cmd.Attempt)
	}
	if err != nil {
		return nil, fmt.Errorf("record_study_event: %w", err)
	}

	h.recorder.IncStudyEvent(string(cmd.Kind))

	m := h.store.Metrics()
	result := &RecordStudyEventResult{
		Kind:           cmd.Kind,
		TargetID:       target,
		Streak:         m.Streak,
		LastStudyDate:  m.LastStudyDate,
		WeeklyProgress: m.WeeklyGoal.Progress,
		WeeklyTarget:   m.WeeklyGoal.Target,
		RecordedAt:     h.now().UTC(),
	}

	event := shared.NewStudyRecordedEvent(h.store.UserID(), string(cmd.Kind), target, m.Streak, m.LastStudyDate, result.RecordedAt)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, event)

	for _, e := range result.Events {
		if err := h.eventPublisher.Publish(e); err != nil {
			// The snapshot is already persisted.
			h.log.Warn("failed to publish study event",
				logger.UserID(h.store.UserID()),
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}

	h.log.Debug("study event recorded",
		logger.UserID(h.store.UserID()),
		logger.String("kind", string(cmd.Kind)),
		logger.String("target_id", target),
		logger.StreakDays(m.Streak),
	)
	return result, nil
}
