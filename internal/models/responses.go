package models

import (
	"encoding/json"
	"time"
)

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// Event names delivered by the scheduler
const (
	EventHumanSupportRequested = "conversations/human-support-requested"
	EventCheckResolution       = "conversations/check-resolution"
	EventAutoCloseCheck        = "conversations/auto-close.check"
	EventAutoCloseMailbox      = "conversations/auto-close.mailbox"
	EventMessageCreated        = "messages/created"
)

// EventRequest is a scheduler delivery
// @Description Event delivery payload
type EventRequest struct {
	// Delivery id, generated when absent
	ID   string          `json:"id,omitempty" example:"01HZX5Q1"`
	Name string          `json:"name" example:"conversations/human-support-requested"`
	Data json.RawMessage `json:"data" swaggertype:"object"`
}

// EventResponse reports the outcome of a handled event
// @Description Event handling result
type EventResponse struct {
	ID     string `json:"id" example:"01HZX5Q1"`
	Name   string `json:"name" example:"messages/created"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty" example:""`
}

// HumanSupportRequestedData is the payload of EventHumanSupportRequested
type HumanSupportRequestedData struct {
	ConversationID int64 `json:"conversationId"`
}

// CheckResolutionData is the payload of EventCheckResolution
type CheckResolutionData struct {
	ConversationID int64 `json:"conversationId"`
	MessageID      int64 `json:"messageId"`
}

// AutoCloseCheckData is the payload of EventAutoCloseCheck
type AutoCloseCheckData struct {
	MailboxID *int64 `json:"mailboxId,omitempty"`
}

// AutoCloseMailboxData is the payload of EventAutoCloseMailbox
type AutoCloseMailboxData struct {
	MailboxID int64 `json:"mailboxId"`
}

// MessageCreatedData is the payload of EventMessageCreated
type MessageCreatedData struct {
	MessageID int64 `json:"messageId"`
}

// ErrorResponse is returned for rejected requests
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// Outcome classifies an automation handler result
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
)
