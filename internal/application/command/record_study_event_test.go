package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnsync/internal/domain/progress"
	"github.com/alem-hub/learnsync/internal/domain/shared"
)

func TestRecordStudyEventCommand_Validate(t *testing.T) {
	attempt := &progress.QuizAttempt{QuizID: "q1", AttemptedAt: testNow, Score: 2, TotalQuestions: 3}

	tests := []struct {
		name    string
		cmd     RecordStudyEventCommand
		wantErr error
	}{
		{"lesson opened", RecordStudyEventCommand{Kind: StudyLessonOpened, TargetID: "l1"}, nil},
		{"empty lesson", RecordStudyEventCommand{Kind: StudyLessonCompleted, TargetID: "  "}, shared.ErrEmptyLessonID},
		{"empty quiz", RecordStudyEventCommand{Kind: StudyQuizCompleted}, shared.ErrEmptyQuizID},
		{"empty exercise", RecordStudyEventCommand{Kind: StudyExerciseCompleted}, shared.ErrEmptyExerciseID},
		{"attempt missing", RecordStudyEventCommand{Kind: StudyQuizAttempted}, shared.ErrInvalidAttempt},
		{"attempt ok", RecordStudyEventCommand{Kind: StudyQuizAttempted, Attempt: attempt}, nil},
		{"attempt target mismatch", RecordStudyEventCommand{Kind: StudyQuizAttempted, TargetID: "q2", Attempt: attempt}, shared.ErrInvalidAttempt},
		{"empty kind", RecordStudyEventCommand{TargetID: "l1"}, shared.ErrInvalidArgument},
		{"unknown kind", RecordStudyEventCommand{Kind: "lesson_skipped", TargetID: "l1"}, shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestRecordStudyEventHandler_CompleteLesson(t *testing.T) {
	store := newTestStore(progress.Empty())
	pub := &capturePublisher{}
	rec := newCaptureRecorder()
	h := NewRecordStudyEventHandler(store, pub, rec, nil)
	h.now = fixedClock

	res, err := h.Handle(context.Background(), RecordStudyEventCommand{
		Kind:          StudyLessonCompleted,
		TargetID:      " l1 ",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "l1", res.TargetID)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, "2025-01-08", res.LastStudyDate)
	assert.Equal(t, 1, res.WeeklyProgress)
	assert.Equal(t, testNow, res.RecordedAt)
	assert.True(t, store.IsLessonCompleted("l1"))
	assert.Equal(t, []string{"lesson_completed"}, rec.study)

	require.Len(t, pub.events, 1)
	ev, ok := pub.events[0].(shared.StudyRecordedEvent)
	require.True(t, ok)
	assert.Equal(t, shared.EventStudyRecorded, ev.EventType())
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Equal(t, "l1", ev.TargetID)
	assert.Equal(t, 1, ev.Streak)
}

func TestRecordStudyEventHandler_QuizAttemptTakesTargetFromAttempt(t *testing.T) {
	store := newTestStore(progress.Empty())
	h := NewRecordStudyEventHandler(store, nil, nil, nil)

	attempt := progress.QuizAttempt{QuizID: "q1", AttemptedAt: testNow.Add(-time.Minute), Score: 1, TotalQuestions: 2}
	res, err := h.Handle(context.Background(), RecordStudyEventCommand{Kind: StudyQuizAttempted, Attempt: &attempt})
	require.NoError(t, err)

	assert.Equal(t, "q1", res.TargetID)
	snap := store.Snapshot()
	require.Len(t, snap.QuizAttempts, 1)
	assert.Equal(t, "q1", snap.QuizAttempts[0].QuizID)
	assert.Equal(t, []string{"2025-01-08"}, snap.StudyDates)
}

func TestRecordStudyEventHandler_ValidationLeavesStoreUntouched(t *testing.T) {
	store := newTestStore(progress.Empty())
	pub := &capturePublisher{}
	h := NewRecordStudyEventHandler(store, pub, nil, nil)

	_, err := h.Handle(context.Background(), RecordStudyEventCommand{Kind: StudyQuizCompleted})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrEmptyQuizID)
	assert.Contains(t, err.Error(), "record_study_event: validation failed")

	assert.True(t, store.Snapshot().IsEmpty())
	assert.Empty(t, pub.events)
}

func TestRecordStudyEventHandler_PublishFailureIsNotFatal(t *testing.T) {
	store := newTestStore(progress.Empty())
	pub := &capturePublisher{err: errPlain}
	h := NewRecordStudyEventHandler(store, pub, nil, nil)

	res, err := h.Handle(context.Background(), RecordStudyEventCommand{Kind: StudyExerciseCompleted, TargetID: "e1"})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, []string{"e1"}, store.Snapshot().CompletedExercises)
}
