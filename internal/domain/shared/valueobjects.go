// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies the learner whose progress is tracked.
type UserID string

// IsValid checks if the user ID is usable as a storage key.
func (u UserID) IsValid() bool {
	return strings.TrimSpace(string(u)) != ""
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrEmptyUserID
	}
	return uid, nil
}

// ContentKind names the type of learning content an event refers to.
type ContentKind string

const (
	ContentLesson   ContentKind = "lesson"
	ContentQuiz     ContentKind = "quiz"
	ContentExercise ContentKind = "exercise"
)

// IsValid checks if the content kind is known.
func (k ContentKind) IsValid() bool {
	switch k {
	case ContentLesson, ContentQuiz, ContentExercise:
		return true
	}
	return false
}

// ValidateContentID rejects blank identifiers with the error matching the kind.
func ValidateContentID(kind ContentKind, id string) error {
	if strings.TrimSpace(id) != "" {
		return nil
	}
	switch kind {
	case ContentQuiz:
		return ErrEmptyQuizID
	case ContentExercise:
		return ErrEmptyExerciseID
	default:
		return ErrEmptyLessonID
	}
}
