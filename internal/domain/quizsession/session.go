// Package quizsession holds the per-quiz resume slot used to continue an
// unfinished quiz offline. It is separate from progress: a session is thrown
// away once the quiz is finished.
package quizsession

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Session is the resumable state of one quiz run.
type Session struct {
	QuizID               string                     `json:"quizId"`
	CurrentIndex         int                        `json:"currentIndex"`
	Answers              map[string]json.RawMessage `json:"answers"`
	SkippedQuestionIDs   []string                   `json:"skippedQuestionIds"`
	HintUsedByQuestionID map[string]bool            `json:"hintUsedByQuestionId"`
	StartedAt            time.Time                  `json:"startedAt"`
	LastUpdatedAt        time.Time                  `json:"lastUpdatedAt"`
	TimeRemainingSec     *int                       `json:"timeRemainingSec,omitempty"`
	IsFinished           bool                       `json:"isFinished"`
}

// New starts an empty session for a quiz.
func New(quizID string, now time.Time, timeLimitSec *int) Session {
	s := Session{
		QuizID:               quizID,
		Answers:              map[string]json.RawMessage{},
		SkippedQuestionIDs:   []string{},
		HintUsedByQuestionID: map[string]bool{},
		StartedAt:            now.UTC(),
		LastUpdatedAt:        now.UTC(),
	}
	if timeLimitSec != nil {
		v := max(*timeLimitSec, 0)
		s.TimeRemainingSec = &v
	}
	return s
}

// Decode parses a stored session leniently and normalizes it:
//
//   - a negative or non-integer currentIndex becomes 0
//   - answers that are not an object become {}
//   - non-string skipped question ids are dropped
//   - hint flags that are not booleans are dropped
//   - a negative timeRemainingSec becomes 0
//
// ok is false when the content is not a JSON object, when the session is
// finished or when it belongs to a different quiz. Callers treat such a
// record as absent and delete it.
func Decode(data []byte, quizID string) (s Session, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Session{}, false
	}

	s = Session{
		QuizID:               decodeString(fields["quizId"]),
		CurrentIndex:         decodeNonNegativeInt(fields["currentIndex"]),
		Answers:              decodeObject(fields["answers"]),
		SkippedQuestionIDs:   decodeStringList(fields["skippedQuestionIds"]),
		HintUsedByQuestionID: decodeBoolMap(fields["hintUsedByQuestionId"]),
		StartedAt:            decodeTime(fields["startedAt"]),
		LastUpdatedAt:        decodeTime(fields["lastUpdatedAt"]),
		IsFinished:           decodeBool(fields["isFinished"]),
	}
	if raw, present := fields["timeRemainingSec"]; present && !isNull(raw) {
		v := decodeNonNegativeInt(raw)
		s.TimeRemainingSec = &v
	}

	if s.IsFinished || s.QuizID != quizID {
		return Session{}, false
	}
	return s, true
}

// Encode serializes the session.
func (s Session) Encode() ([]byte, error) {
	if s.Answers == nil {
		s.Answers = map[string]json.RawMessage{}
	}
	if s.SkippedQuestionIDs == nil {
		s.SkippedQuestionIDs = []string{}
	}
	if s.HintUsedByQuestionID == nil {
		s.HintUsedByQuestionID = map[string]bool{}
	}
	return json.Marshal(s)
}

// Answer records the answer for a question and moves the cursor.
func (s *Session) Answer(questionID string, answer json.RawMessage, nextIndex int, now time.Time) {
	if s.Answers == nil {
		s.Answers = map[string]json.RawMessage{}
	}
	s.Answers[questionID] = append(json.RawMessage(nil), answer...)
	s.CurrentIndex = max(nextIndex, 0)
	s.LastUpdatedAt = now.UTC()
}

// Skip marks a question as skipped once.
func (s *Session) Skip(questionID string, now time.Time) {
	for _, id := range s.SkippedQuestionIDs {
		if id == questionID {
			s.LastUpdatedAt = now.UTC()
			return
		}
	}
	s.SkippedQuestionIDs = append(s.SkippedQuestionIDs, questionID)
	s.LastUpdatedAt = now.UTC()
}

// UseHint records that a hint was shown for a question.
func (s *Session) UseHint(questionID string, now time.Time) {
	if s.HintUsedByQuestionID == nil {
		s.HintUsedByQuestionID = map[string]bool{}
	}
	s.HintUsedByQuestionID[questionID] = true
	s.LastUpdatedAt = now.UTC()
}

// Tick sets the remaining time, clamped at 0.
func (s *Session) Tick(remainingSec int, now time.Time) {
	v := max(remainingSec, 0)
	s.TimeRemainingSec = &v
	s.LastUpdatedAt = now.UTC()
}

// Finish marks the session finished. A finished session is never resumed.
func (s *Session) Finish(now time.Time) {
	s.IsFinished = true
	s.LastUpdatedAt = now.UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// LENIENT FIELD DECODING
// ══════════════════════════════════════════════════════════════════════════════

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage) string {
	var v string
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

func decodeBool(raw json.RawMessage) bool {
	var v bool
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return false
	}
	return v
}

func decodeNonNegativeInt(raw json.RawMessage) int {
	var f float64
	if isNull(raw) || json.Unmarshal(raw, &f) != nil {
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	var v map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &v) != nil || v == nil {
		return map[string]json.RawMessage{}
	}
	return v
}

func decodeStringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &items) != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) != nil || strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func decodeBoolMap(raw json.RawMessage) map[string]bool {
	out := map[string]bool{}
	for k, v := range decodeObject(raw) {
		var b bool
		if isNull(v) || json.Unmarshal(v, &b) != nil {
			continue
		}
		out[k] = b
	}
	return out
}

func decodeTime(raw json.RawMessage) time.Time {
	s := decodeString(raw)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
