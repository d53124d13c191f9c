package models

import (
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"

	"supportcore/internal/utils"
)

// ConversationStatus is the lifecycle state of a conversation
type ConversationStatus string

const (
	StatusOpen   ConversationStatus = "open"
	StatusClosed ConversationStatus = "closed"
	StatusSpam   ConversationStatus = "spam"
)

// MessageRole identifies who authored a message
type MessageRole string

const (
	RoleUser        MessageRole = "user"
	RoleStaff       MessageRole = "staff"
	RoleAIAssistant MessageRole = "ai_assistant"
)

// ReactionType is the customer's feedback on an AI reply
type ReactionType string

const (
	ReactionThumbsUp   ReactionType = "thumbs-up"
	ReactionThumbsDown ReactionType = "thumbs-down"
)

// EventType is the kind of audit event recorded against a conversation
type EventType string

const (
	EventUpdate              EventType = "update"
	EventResolvedByAI        EventType = "resolved_by_ai"
	EventRequestHumanSupport EventType = "request_human_support"
)

// Audit event reasons
const (
	ReasonAutoClosed           = "auto_closed_due_to_inactivity"
	ReasonAutoAssigned         = "auto_assigned"
	ReasonPositiveReaction     = "Positive reaction with no follow-up questions."
	ReasonNoFollowUpAfter24Hrs = "No customer follow-up after 24 hours."
)

// Conversation represents a support conversation
type Conversation struct {
	ID                     int64              `db:"id" json:"id"`
	Slug                   string             `db:"slug" json:"slug"`
	Subject                *string            `db:"subject" json:"subject,omitempty"`
	Status                 ConversationStatus `db:"status" json:"status"`
	AssignedToID           *string            `db:"assigned_to_id" json:"assigned_to_id,omitempty"`
	AssignedToAI           bool               `db:"assigned_to_ai" json:"assigned_to_ai"`
	MailboxID              int64              `db:"mailbox_id" json:"mailbox_id"`
	EmailFrom              *string            `db:"email_from" json:"email_from,omitempty"`
	LastUserEmailCreatedAt *time.Time         `db:"last_user_email_created_at" json:"last_user_email_created_at,omitempty"`
	MergedIntoID           *int64             `db:"merged_into_id" json:"merged_into_id,omitempty"`
	IsPrompt               bool               `db:"is_prompt" json:"is_prompt"`
	ClosedAt               *time.Time         `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// IsAssigned reports whether a team member or the AI already owns the conversation
func (c *Conversation) IsAssigned() bool {
	return (c.AssignedToID != nil && *c.AssignedToID != "") || c.AssignedToAI
}

// IsMerged reports whether the conversation was merged into another one
func (c *Conversation) IsMerged() bool {
	return c.MergedIntoID != nil
}

// IsAnonymous reports whether the conversation has no customer email
func (c *Conversation) IsAnonymous() bool {
	return c.EmailFrom == nil || *c.EmailFrom == ""
}

// SubjectText returns the subject or an empty string
func (c *Conversation) SubjectText() string {
	if c.Subject == nil {
		return ""
	}
	return *c.Subject
}

// Message is a single message within a conversation
type Message struct {
	ID                int64         `db:"id" json:"id"`
	ConversationID    int64         `db:"conversation_id" json:"conversation_id"`
	Role              MessageRole   `db:"role" json:"role"`
	Body              *string       `db:"body" json:"body,omitempty"`
	CleanedUpText     *string       `db:"cleaned_up_text" json:"cleaned_up_text,omitempty"`
	ReactionType      *ReactionType `db:"reaction_type" json:"reaction_type,omitempty"`
	ReactionCreatedAt *time.Time    `db:"reaction_created_at" json:"reaction_created_at,omitempty"`
	ResponseToID      *int64        `db:"response_to_id" json:"response_to_id,omitempty"`
	UserID            *string       `db:"user_id" json:"user_id,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// HasReaction reports whether the message carries the given reaction
func (m *Message) HasReaction(reaction ReactionType) bool {
	return m.ReactionType != nil && *m.ReactionType == reaction
}

// Text returns the message as plain text, preferring the cleaned-up text
func (m *Message) Text() string {
	if m.CleanedUpText != nil && strings.TrimSpace(*m.CleanedUpText) != "" {
		return strings.TrimSpace(*m.CleanedUpText)
	}
	if m.Body == nil {
		return ""
	}
	return utils.CleanHTML(*m.Body)
}

// ConversationEvent is an audit trail entry
type ConversationEvent struct {
	ID             int64          `db:"id" json:"id"`
	ConversationID int64          `db:"conversation_id" json:"conversation_id"`
	Type           EventType      `db:"type" json:"type"`
	Changes        types.JSONText `db:"changes" json:"changes"`
	Reason         *string        `db:"reason" json:"reason,omitempty"`
	ByUserID       *string        `db:"by_user_id" json:"by_user_id,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// ChatMessage is one turn passed to the LLM query service
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
