// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Progress events
	EventStudyRecorded EventType = "progress.study_recorded"
	EventProgressReset EventType = "progress.reset"

	// Sync events
	EventSnapshotSynced  EventType = "sync.snapshot_synced"
	EventSnapshotChanged EventType = "sync.snapshot_changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped in UTC.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// StudyRecordedEvent is emitted after a study event mutated a user's progress.
type StudyRecordedEvent struct {
	BaseEvent
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	Streak   int    `json:"streak"`
	Date     string `json:"date"`
}

// Payload implements Event interface.
func (e StudyRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":      e.Kind,
		"target_id": e.TargetID,
		"streak":    e.Streak,
		"date":      e.Date,
	}
}

// NewStudyRecordedEvent creates a new StudyRecordedEvent.
func NewStudyRecordedEvent(userID, kind, targetID string, streak int, date string, at time.Time) StudyRecordedEvent {
	return StudyRecordedEvent{
		BaseEvent: NewBaseEvent(EventStudyRecorded, userID, at),
		Kind:      kind,
		TargetID:  targetID,
		Streak:    streak,
		Date:      date,
	}
}

// ProgressResetEvent is emitted when a user's progress was wiped.
type ProgressResetEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e ProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewProgressResetEvent creates a new ProgressResetEvent.
func NewProgressResetEvent(userID string, at time.Time) ProgressResetEvent {
	return ProgressResetEvent{BaseEvent: NewBaseEvent(EventProgressReset, userID, at)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Sync Events
// ═══════════════════════════════════════════════════════════════════════════

// SnapshotSyncedEvent is emitted after a successful local/remote reconciliation.
type SnapshotSyncedEvent struct {
	BaseEvent
	Pushed bool `json:"pushed"`
}

// Payload implements Event interface.
func (e SnapshotSyncedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pushed": e.Pushed,
	}
}

// NewSnapshotSyncedEvent creates a new SnapshotSyncedEvent.
func NewSnapshotSyncedEvent(userID string, pushed bool, at time.Time) SnapshotSyncedEvent {
	return SnapshotSyncedEvent{
		BaseEvent: NewBaseEvent(EventSnapshotSynced, userID, at),
		Pushed:    pushed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an event for transport under the given envelope id.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if c, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = c.Correlation()
	}
	return env, nil
}

// Correlation returns the correlation ID carried by the event.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
