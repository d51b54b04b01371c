// Package audit defines the append-only compliance trail. Events are
// created once per recorded action and never mutated or deleted; no sink
// implementation exposes an update or delete operation.
package audit

import (
	"context"
	"time"
)

// Actions recorded in the trail.
const (
	ActionUpload       = "upload"
	ActionWorkflowStep = "workflow_step"
	ActionOCRComplete  = "ocr_complete"
	ActionAISuggestion = "ai_suggestion"
	ActionApprove      = "approve"
	ActionReject       = "reject"
)

// Event is one immutable audit record.
type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	Trigger    string         `json:"trigger,omitempty"`
	Step       string         `json:"step,omitempty"`
	InputKeys  []string       `json:"input_keys,omitempty"`
	OutputKeys []string       `json:"output_keys,omitempty"`
	Success    bool           `json:"success"`
	DurationMS float64        `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	RawOCR     string         `json:"raw_ocr_output,omitempty"`
	AIPrompt   string         `json:"ai_prompt,omitempty"`
	AIResponse string         `json:"ai_response,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Sink records events durably. Record must return only after the event is
// committed; callers treat a nil error as a durable append.
type Sink interface {
	Record(ctx context.Context, ev *Event) error
}
