// Package assignment routes conversations that request human support to a team
// member, by keyword first and by round-robin over core members otherwise.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"

	"supportcore/internal/analytics"
	"supportcore/internal/counter"
	"supportcore/internal/database"
	"supportcore/internal/models"
	"supportcore/internal/utils"
)

// Bounds on the text searched for keywords
const (
	MaxContentMessages = 50
	MaxContentRunes    = 20000
)

// Assignment methods
const (
	MethodKeyword    = "keyword"
	MethodRoundRobin = "round_robin"
)

// Outcome messages
const (
	MsgAlreadyAssigned = "Skipped: already assigned"
	MsgAlreadyMerged   = "Skipped: conversation is already merged"
	MsgNoActiveMembers = "Skipped: no active team members available for assignment"
	MsgNoSuitable      = "Skipped: could not find suitable team member for assignment"
	MsgNotFound        = "Skipped: conversation not found"
)

// ConversationStore is the conversation access the router needs
type ConversationStore interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListUserMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
	AssignConversation(ctx context.Context, conversationID int64, memberID, reason string) (bool, error)
}

// TeamStore lists the members of a mailbox in a stable order
type TeamStore interface {
	ListMailboxMembers(ctx context.Context, mailboxID int64) ([]models.TeamMember, error)
}

// Result describes what the router did with one event
type Result struct {
	Status       models.Outcome    `json:"status"`
	Message      string            `json:"message"`
	AssigneeID   string            `json:"assigneeId,omitempty"`
	AssigneeRole models.MemberRole `json:"assigneeRole,omitempty"`
	Method       string            `json:"method,omitempty"`
}

func skipped(message string) *Result {
	return &Result{Status: models.OutcomeSkipped, Message: message}
}

// Router assigns conversations to team members
type Router struct {
	conversations ConversationStore
	team          TeamStore
	counters      counter.Store
	keyPrefix     string
	recorder      analytics.Recorder
	randIntn      func(n int) int
	logger        zerolog.Logger
}

// NewRouter creates a router. keyPrefix namespaces the per-mailbox rotation counters.
func NewRouter(conversations ConversationStore, team TeamStore, counters counter.Store, keyPrefix string, recorder analytics.Recorder, logger zerolog.Logger) *Router {
	if recorder == nil {
		recorder = analytics.Noop{}
	}
	return &Router{
		conversations: conversations,
		team:          team,
		counters:      counters,
		keyPrefix:     keyPrefix,
		recorder:      recorder,
		randIntn:      rand.IntN,
		logger:        logger.With().Str("component", "assignment").Logger(),
	}
}

// CounterKey returns the rotation counter key of a mailbox
func (r *Router) CounterKey(mailboxID int64) string {
	return fmt.Sprintf("%s:%d", r.keyPrefix, mailboxID)
}

// HandleHumanSupportRequested assigns the conversation if nobody owns it yet
func (r *Router) HandleHumanSupportRequested(ctx context.Context, conversationID int64) (*Result, error) {
	log := r.logger.With().Int64("conversation_id", conversationID).Logger()

	conversation, err := r.conversations.GetConversation(ctx, conversationID)
	if errors.Is(err, database.ErrNotFound) {
		log.Info().Msg(MsgNotFound)
		return skipped(MsgNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	if conversation.IsAssigned() {
		log.Info().Msg(MsgAlreadyAssigned)
		return skipped(MsgAlreadyAssigned), nil
	}
	if conversation.IsMerged() {
		log.Info().Msg(MsgAlreadyMerged)
		return skipped(MsgAlreadyMerged), nil
	}

	members, err := r.team.ListMailboxMembers(ctx, conversation.MailboxID)
	if err != nil {
		return nil, err
	}
	active := activeMembers(members)
	if len(active) == 0 {
		log.Info().Msg(MsgNoActiveMembers)
		return skipped(MsgNoActiveMembers), nil
	}

	messages, err := r.conversations.ListUserMessages(ctx, conversationID, MaxContentMessages)
	if err != nil {
		return nil, err
	}
	content := ConversationContent(conversation, messages)

	var (
		assignee *models.TeamMember
		method   string
	)
	if matches := KeywordMatches(active, content); len(matches) > 0 {
		assignee = &matches[r.randIntn(len(matches))]
		method = MethodKeyword
	} else if core := CoreMembers(active); len(core) > 0 {
		assignee = &core[r.nextRotationIndex(ctx, conversation.MailboxID, len(core))]
		method = MethodRoundRobin
	}

	if assignee == nil {
		log.Info().Msg(MsgNoSuitable)
		return skipped(MsgNoSuitable), nil
	}

	assigned, err := r.conversations.AssignConversation(ctx, conversationID, assignee.ID, models.ReasonAutoAssigned)
	if err != nil {
		return nil, err
	}
	if !assigned {
		log.Info().Msg(MsgAlreadyAssigned)
		return skipped(MsgAlreadyAssigned), nil
	}

	message := fmt.Sprintf("Assigned conversation %d to %s (%s)", conversationID, assignee.Name(), assignee.Role)
	log.Info().
		Str("assignee_id", assignee.ID).
		Str("method", method).
		Msg(message)

	metadata := map[string]any{"mailbox_id": conversation.MailboxID, "method": method}
	r.recorder.Record(ctx, analytics.EventAssignment, 1, metadata)
	if method == MethodKeyword {
		r.recorder.Record(ctx, analytics.EventKeywordAssignment, 1, metadata)
	}

	return &Result{
		Status:       models.OutcomeApplied,
		Message:      message,
		AssigneeID:   assignee.ID,
		AssigneeRole: assignee.Role,
		Method:       method,
	}, nil
}

// nextRotationIndex advances the mailbox counter atomically. When the counter
// store is unavailable the previous value reads as 0.
func (r *Router) nextRotationIndex(ctx context.Context, mailboxID int64, n int) int {
	key := r.CounterKey(mailboxID)
	value, err := r.counters.Increment(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Rotation counter unavailable, continuing without it")
		value = 1
	}
	return RotationIndex(value, n)
}

// RotationIndex maps a counter value onto [0, n)
func RotationIndex(value int64, n int) int {
	if n <= 0 {
		return 0
	}
	index := value % int64(n)
	if index < 0 {
		index += int64(n)
	}
	return int(index)
}

// ConversationContent is the text keywords are searched in: the subject followed
// by the customer messages, capped at MaxContentRunes.
func ConversationContent(conversation *models.Conversation, messages []models.Message) string {
	parts := make([]string, 0, len(messages)+1)
	if subject := strings.TrimSpace(conversation.SubjectText()); subject != "" {
		parts = append(parts, subject)
	}
	for i := range messages {
		if messages[i].Role != models.RoleUser {
			continue
		}
		if text := messages[i].Text(); text != "" {
			parts = append(parts, text)
		}
	}
	return utils.TruncateRunes(strings.Join(parts, " "), MaxContentRunes)
}

// activeMembers drops members who are away
func activeMembers(members []models.TeamMember) []models.TeamMember {
	active := make([]models.TeamMember, 0, len(members))
	for _, m := range members {
		if m.Role == models.MemberCore || m.Role == models.MemberNonCore {
			active = append(active, m)
		}
	}
	return active
}

// KeywordMatches returns the non-core members with a keyword contained in content, ignoring case
func KeywordMatches(members []models.TeamMember, content string) []models.TeamMember {
	var matches []models.TeamMember
	for _, m := range members {
		if m.Role != models.MemberNonCore || len(m.Keywords) == 0 {
			continue
		}
		for _, keyword := range m.Keywords {
			keyword = strings.TrimSpace(keyword)
			if keyword != "" && utils.ContainsFold(content, keyword) {
				matches = append(matches, m)
				break
			}
		}
	}
	return matches
}

// CoreMembers returns the core members, keeping their order
func CoreMembers(members []models.TeamMember) []models.TeamMember {
	var core []models.TeamMember
	for _, m := range members {
		if m.Role == models.MemberCore {
			core = append(core, m)
		}
	}
	return core
}
