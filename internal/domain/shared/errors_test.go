package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Is(t *testing.T) {
	assert.True(t, errors.Is(ErrEmptyLessonID, ErrInvalidArgument))
	assert.True(t, IsValidation(ErrEmptyQuizID))
	assert.False(t, IsValidation(ErrSnapshotCorrupted))

	wrapped := fmt.Errorf("record: %w", ErrEmptyExerciseID)
	assert.True(t, IsValidation(wrapped))
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError("sync", "Fetch", ErrRemoteUnavailable, "fetch failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrRemoteUnavailable))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsExternalService(err))
	assert.Equal(t, "sync.Fetch: fetch failed: connection refused", err.Error())
}

func TestIsCorrupted(t *testing.T) {
	assert.True(t, IsCorrupted(ErrSnapshotCorrupted))
	assert.True(t, IsCorrupted(ErrSnapshotVersion))
	assert.False(t, IsCorrupted(ErrRemoteStoreDown))
}

func TestValidateContentID(t *testing.T) {
	assert.NoError(t, ValidateContentID(ContentLesson, "intro"))
	assert.ErrorIs(t, ValidateContentID(ContentLesson, "  "), ErrEmptyLessonID)
	assert.ErrorIs(t, ValidateContentID(ContentQuiz, ""), ErrEmptyQuizID)
	assert.ErrorIs(t, ValidateContentID(ContentExercise, ""), ErrEmptyExerciseID)
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  user-1 ")
	require.NoError(t, err)
	assert.Equal(t, UserID("user-1"), id)

	_, err = NewUserID("")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	event := NewStudyRecordedEvent("user-1", "lesson", "intro", 3, "2024-01-15", at)
	event.BaseEvent = event.BaseEvent.WithCorrelationID("corr-1")

	env, err := NewEnvelope("env-1", event)
	require.NoError(t, err)

	assert.Equal(t, EventStudyRecorded, env.Type)
	assert.Equal(t, "user-1", env.AggregateID)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.JSONEq(t, `{"kind":"lesson","target_id":"intro","streak":3,"date":"2024-01-15"}`, string(env.Payload))
}
