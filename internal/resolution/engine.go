// Package resolution decides whether an AI-handled conversation can be marked
// resolved once the customer has gone quiet.
package resolution

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"supportcore/internal/analytics"
	"supportcore/internal/database"
	"supportcore/internal/models"
)

// SystemPrompt instructs the classifier
const SystemPrompt = `You are analyzing a customer service conversation to determine if the customer's issue was satisfactorily resolved.

Consider:
1) Was the original issue clearly addressed?
2) Did the customer confirm resolution or express satisfaction?
3) Were there any unaddressed follow-up questions?

Respond with 'true: [reason]' or 'false: [reason]' where [reason] is a brief explanation of your decision.`

// Classifier call parameters
const (
	MaxTokens   = 100
	Temperature = float32(0.1)
)

// Outcome messages
const (
	MsgNewerMessage    = "Skipped: conversation has newer messages"
	MsgAlreadyDecided  = "Skipped: resolution already recorded or human support requested"
	MsgStaffResponded  = "Skipped: a team member already responded"
	MsgPositive        = "Positive reaction"
	MsgNegative        = "Negative reaction"
	MsgUnparseable     = "Unrecognized classifier response"
	MsgAlreadyResolved = "Skipped: resolution recorded concurrently"
)

var classificationPattern = regexp.MustCompile(`(?is)^\s*(true|false)\s*:\s*(.*?)\s*$`)

var guardEvents = []models.EventType{models.EventResolvedByAI, models.EventRequestHumanSupport}

// Store is the conversation state the engine reads and appends to
type Store interface {
	HasMessageAfter(ctx context.Context, conversationID, messageID int64) (bool, error)
	HasEventOfType(ctx context.Context, conversationID int64, types ...models.EventType) (bool, error)
	HasMessageWithRole(ctx context.Context, conversationID int64, role models.MessageRole) (bool, error)
	LatestMessageByRole(ctx context.Context, conversationID int64, role models.MessageRole) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
	InsertEventUnlessExists(ctx context.Context, conversationID int64, eventType models.EventType, reason string, guardTypes ...models.EventType) (bool, error)
}

// LLM answers a single prompt
type LLM interface {
	Query(ctx context.Context, systemPrompt string, messages []models.ChatMessage, maxTokens int, temperature float32) (string, error)
}

// Result describes the outcome of one resolution check
type Result struct {
	Status   models.Outcome `json:"status"`
	Resolved bool           `json:"isResolved"`
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Engine runs resolution checks
type Engine struct {
	store    Store
	llm      LLM
	recorder analytics.Recorder
	logger   zerolog.Logger
}

// NewEngine creates a resolution engine
func NewEngine(store Store, llm LLM, recorder analytics.Recorder, logger zerolog.Logger) *Engine {
	if recorder == nil {
		recorder = analytics.Noop{}
	}
	return &Engine{
		store:    store,
		llm:      llm,
		recorder: recorder,
		logger:   logger.With().Str("component", "resolution").Logger(),
	}
}

// HandleCheckResolution evaluates a conversation after the AI's reply to messageID
func (e *Engine) HandleCheckResolution(ctx context.Context, conversationID, messageID int64) (*Result, error) {
	log := e.logger.With().Int64("conversation_id", conversationID).Int64("message_id", messageID).Logger()

	if reason, err := e.skipReason(ctx, conversationID, messageID); err != nil {
		return nil, err
	} else if reason != "" {
		log.Info().Msg(reason)
		return &Result{Status: models.OutcomeSkipped, Message: reason}, nil
	}

	latest, err := e.store.LatestMessageByRole(ctx, conversationID, models.RoleAIAssistant)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		switch {
		case latest.HasReaction(models.ReactionThumbsUp):
			return e.markResolved(ctx, log, conversationID, models.ReasonPositiveReaction, MsgPositive)
		case latest.HasReaction(models.ReactionThumbsDown):
			log.Info().Msg("Not resolved: negative reaction")
			return &Result{Status: models.OutcomeApplied, Resolved: false, Reason: MsgNegative}, nil
		}
	}

	messages, err := e.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	answer, err := e.llm.Query(ctx, SystemPrompt, chatTranscript(messages), MaxTokens, Temperature)
	if err != nil {
		return nil, err
	}

	resolved, reason, ok := ParseClassification(answer)
	if !ok {
		log.Warn().Str("response", answer).Msg("Classifier response not in 'bool: reason' form, treating as unresolved")
		return &Result{Status: models.OutcomeApplied, Resolved: false, Reason: MsgUnparseable}, nil
	}
	if !resolved {
		log.Info().Str("reason", reason).Msg("Not resolved")
		return &Result{Status: models.OutcomeApplied, Resolved: false, Reason: reason}, nil
	}

	return e.markResolved(ctx, log, conversationID, models.ReasonNoFollowUpAfter24Hrs, reason)
}

// skipReason re-checks conversation state right before acting
func (e *Engine) skipReason(ctx context.Context, conversationID, messageID int64) (string, error) {
	newer, err := e.store.HasMessageAfter(ctx, conversationID, messageID)
	if err != nil {
		return "", err
	}
	if newer {
		return MsgNewerMessage, nil
	}

	decided, err := e.store.HasEventOfType(ctx, conversationID, guardEvents...)
	if err != nil {
		return "", err
	}
	if decided {
		return MsgAlreadyDecided, nil
	}

	staff, err := e.store.HasMessageWithRole(ctx, conversationID, models.RoleStaff)
	if err != nil {
		return "", err
	}
	if staff {
		return MsgStaffResponded, nil
	}

	return "", nil
}

func (e *Engine) markResolved(ctx context.Context, log zerolog.Logger, conversationID int64, eventReason, reason string) (*Result, error) {
	inserted, err := e.store.InsertEventUnlessExists(ctx, conversationID, models.EventResolvedByAI, eventReason, guardEvents...)
	if err != nil {
		return nil, err
	}
	if !inserted {
		log.Info().Msg(MsgAlreadyResolved)
		return &Result{Status: models.OutcomeSkipped, Message: MsgAlreadyResolved}, nil
	}

	log.Info().Str("reason", eventReason).Msg("Conversation resolved by AI")
	e.recorder.Record(ctx, analytics.EventResolution, 1, map[string]any{"conversation_id": conversationID, "reason": eventReason})

	return &Result{Status: models.OutcomeApplied, Resolved: true, Reason: reason}, nil
}

// chatTranscript maps stored messages onto classifier turns
func chatTranscript(messages []models.Message) []models.ChatMessage {
	turns := make([]models.ChatMessage, 0, len(messages))
	for i := range messages {
		role := "assistant"
		if messages[i].Role == models.RoleUser {
			role = "user"
		}
		turns = append(turns, models.ChatMessage{Role: role, Content: messages[i].Text()})
	}
	return turns
}

// ParseClassification reads a "true: reason" or "false: reason" answer. ok is
// false when the answer has any other shape.
func ParseClassification(answer string) (resolved bool, reason string, ok bool) {
	match := classificationPattern.FindStringSubmatch(answer)
	if match == nil {
		return false, "", false
	}
	return strings.EqualFold(match[1], "true"), match[2], true
}
