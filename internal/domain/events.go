package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for run lifecycle events.
const (
	EventTypeRunRequested = "run.requested"
	EventTypeRunStarted   = "run.started"
	EventTypeRunCompleted = "run.completed"
	EventTypeRunFailed    = "run.failed"
)

// Event is a run lifecycle message published to the event bus.
type Event struct {
	EventID       string         `json:"event_id"`
	EventVersion  int            `json:"event_version"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	EventType     string         `json:"event_type"`
	Payload       []byte         `json:"payload"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewEvent creates a new event with the given parameters.
// The payload is JSON-serialized automatically.
func NewEvent(eventType, aggregateID, aggregateType string, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// NewRunEvent creates an event whose aggregate is the given run.
func NewRunEvent(eventType string, runID uuid.UUID, payload any) (*Event, error) {
	return NewEvent(eventType, runID.String(), "keyword_run", payload)
}

// WithMetadata sets the metadata on the event.
func (e *Event) WithMetadata(metadata map[string]any) *Event {
	e.Metadata = metadata
	return e
}

// RunRequestedPayload is the payload for run.requested events.
type RunRequestedPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	RunID     uuid.UUID `json:"run_id"`
	Niche     string    `json:"niche"`
	Base      string    `json:"base"`
	Mode      RunMode   `json:"mode"`
	SeedCount int       `json:"seed_count"`
}

// RunCompletedPayload is the payload for run.completed events.
type RunCompletedPayload struct {
	RunID       uuid.UUID     `json:"run_id"`
	ResultCount int           `json:"result_count"`
	JobUID      JobHandle     `json:"job_uid,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// RunFailedPayload is the payload for run.failed events.
type RunFailedPayload struct {
	RunID uuid.UUID   `json:"run_id"`
	Kind  FailureKind `json:"kind"`
	Error string      `json:"error"`
}
