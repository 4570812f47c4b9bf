package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "WORKFLOW_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewWorkflowCompletedEvent records a guided workflow reaching its
// terminal complete state.
func NewWorkflowCompletedEvent(sessionID, userID, workflowID string) Event {
	return BaseEvent{
		Type: "WORKFLOW_COMPLETED",
		Data: map[string]interface{}{
			"session_id":  sessionID,
			"user_id":     userID,
			"workflow_id": workflowID,
		},
		OccurredAt: time.Now(),
	}
}

// NewWorkflowCancelledEvent records a user abandoning a workflow.
func NewWorkflowCancelledEvent(sessionID, userID string) Event {
	return BaseEvent{
		Type: "WORKFLOW_CANCELLED",
		Data: map[string]interface{}{
			"session_id": sessionID,
			"user_id":    userID,
		},
		OccurredAt: time.Now(),
	}
}

// NewRecordCreatedEvent records a domain record created through
// entity resolution or the record API.
func NewRecordCreatedEvent(recordID, modelType, userID string) Event {
	return BaseEvent{
		Type: "RECORD_CREATED",
		Data: map[string]interface{}{
			"record_id":  recordID,
			"model_type": modelType,
			"user_id":    userID,
		},
		OccurredAt: time.Now(),
	}
}
