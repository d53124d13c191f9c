// Package vip emails the team when a high-value customer writes in or gets a reply.
package vip

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"supportcore/internal/analytics"
	"supportcore/internal/database"
	"supportcore/internal/email"
	"supportcore/internal/models"
)

// maxConcurrentSends bounds parallel SendGrid calls per notification
const maxConcurrentSends = 10

// Outcome messages
const (
	MsgMessageNotFound  = "Not sent, message not found"
	MsgPrompt           = "Not sent, prompt conversation"
	MsgAnonymous        = "Not sent, anonymous conversation"
	MsgDisabled         = "Not sent, VIP notifications disabled"
	MsgNotVip           = "Not sent, not a VIP customer"
	MsgOriginalNotFound = "Not sent, original message not found"
	MsgNotApplicable    = "Not sent, not a user message and not a reply to a user message"
	MsgNoRecipients     = "Not sent, no team members found"
)

// ConversationStore loads messages and conversations
type ConversationStore interface {
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
}

// MailboxStore loads mailbox settings
type MailboxStore interface {
	GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error)
}

// TeamStore resolves recipients and reply authors
type TeamStore interface {
	ListNotificationRecipients(ctx context.Context, mailboxID int64) ([]models.TeamMember, error)
	GetUser(ctx context.Context, id string) (*models.TeamMember, error)
}

// CustomerStore looks up platform customers by email
type CustomerStore interface {
	GetPlatformCustomer(ctx context.Context, mailboxID int64, email string) (*models.PlatformCustomer, error)
}

// Sender delivers one email
type Sender interface {
	Send(ctx context.Context, msg email.Message) error
}

// Result describes the outcome of one notification
type Result struct {
	Status          models.Outcome `json:"status"`
	Sent            bool           `json:"sent"`
	Message         string         `json:"message,omitempty"`
	EmailsSent      int            `json:"emailsSent"`
	TotalRecipients int            `json:"totalRecipients"`
}

func notSent(message string) *Result {
	return &Result{Status: models.OutcomeSkipped, Message: message}
}

// Options configures the notifier
type Options struct {
	Enabled bool
	BaseURL string
}

// Notifier sends VIP notifications
type Notifier struct {
	conversations ConversationStore
	mailboxes     MailboxStore
	team          TeamStore
	customers     CustomerStore
	sender        Sender
	recorder      analytics.Recorder
	opts          Options
	logger        zerolog.Logger
}

// NewNotifier creates a VIP notifier
func NewNotifier(conversations ConversationStore, mailboxes MailboxStore, team TeamStore, customers CustomerStore, sender Sender, recorder analytics.Recorder, opts Options, logger zerolog.Logger) *Notifier {
	if recorder == nil {
		recorder = analytics.Noop{}
	}
	return &Notifier{
		conversations: conversations,
		mailboxes:     mailboxes,
		team:          team,
		customers:     customers,
		sender:        sender,
		recorder:      recorder,
		opts:          opts,
		logger:        logger.With().Str("component", "vip").Logger(),
	}
}

// HandleMessageCreated notifies the team if the message belongs to a VIP conversation
func (n *Notifier) HandleMessageCreated(ctx context.Context, messageID int64) (*Result, error) {
	log := n.logger.With().Int64("message_id", messageID).Logger()

	message, err := n.conversations.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return notSent(MsgMessageNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	conversation, err := n.resolveConversation(ctx, message.ConversationID)
	if err != nil {
		return nil, err
	}
	log = log.With().Int64("conversation_id", conversation.ID).Logger()

	if reason := n.skipReason(conversation); reason != "" {
		log.Info().Msg(reason)
		return notSent(reason), nil
	}

	mailbox, err := n.mailboxes.GetMailbox(ctx, conversation.MailboxID)
	if err != nil {
		return nil, err
	}

	customer, err := n.customers.GetPlatformCustomer(ctx, conversation.MailboxID, *conversation.EmailFrom)
	if errors.Is(err, database.ErrNotFound) {
		log.Info().Msg(MsgNotVip)
		return notSent(MsgNotVip), nil
	}
	if err != nil {
		return nil, err
	}
	if !customer.IsVip(mailbox.VipThreshold) {
		log.Info().Msg(MsgNotVip)
		return notSent(MsgNotVip), nil
	}

	notification := &Notification{
		CustomerName:     customer.DisplayName(),
		CustomerEmail:    *conversation.EmailFrom,
		ConversationLink: ConversationLink(n.opts.BaseURL, conversation.Slug),
		CustomerLinks:    displayLinks(customer.LinkList()),
		Closed:           conversation.Status == models.StatusClosed,
	}

	if reason, err := n.fillMessages(ctx, notification, message); err != nil {
		return nil, err
	} else if reason != "" {
		log.Info().Msg(reason)
		return notSent(reason), nil
	}

	members, err := n.team.ListNotificationRecipients(ctx, conversation.MailboxID)
	if err != nil {
		return nil, err
	}
	recipients := Recipients(members)
	if len(recipients) == 0 {
		log.Info().Msg(MsgNoRecipients)
		return notSent(MsgNoRecipients), nil
	}

	plain, html, err := notification.Render()
	if err != nil {
		return nil, err
	}

	sent := n.send(ctx, log, recipients, email.Message{
		Subject:   notification.Subject(),
		PlainText: plain,
		HTML:      html,
	})

	// Nothing was delivered, so a scheduler retry cannot duplicate e-mails
	if sent == 0 {
		return nil, fmt.Errorf("all %d VIP notifications failed", len(recipients))
	}

	log.Info().Int("sent", sent).Int("recipients", len(recipients)).Msg("VIP notification sent")
	metadata := map[string]any{"mailbox_id": conversation.MailboxID}
	n.recorder.Record(ctx, analytics.EventVipNotification, sent, metadata)
	n.recorder.Record(ctx, analytics.EventSendGridCall, sent, metadata)

	return &Result{
		Status:          models.OutcomeApplied,
		Sent:            true,
		EmailsSent:      sent,
		TotalRecipients: len(recipients),
	}, nil
}

// resolveConversation follows a single merge hop
func (n *Notifier) resolveConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	conversation, err := n.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.MergedIntoID == nil {
		return conversation, nil
	}
	return n.conversations.GetConversation(ctx, *conversation.MergedIntoID)
}

func (n *Notifier) skipReason(conversation *models.Conversation) string {
	switch {
	case conversation.IsPrompt:
		return MsgPrompt
	case conversation.IsAnonymous():
		return MsgAnonymous
	case !n.opts.Enabled:
		return MsgDisabled
	}
	return ""
}

// fillMessages sets the original message and, for replies, the reply and its author
func (n *Notifier) fillMessages(ctx context.Context, notification *Notification, message *models.Message) (string, error) {
	switch {
	case message.Role != models.RoleUser && message.ResponseToID != nil:
		original, err := n.conversations.GetMessage(ctx, *message.ResponseToID)
		if errors.Is(err, database.ErrNotFound) {
			return MsgOriginalNotFound, nil
		}
		if err != nil {
			return "", err
		}
		notification.OriginalMessage = original.Text()
		notification.ReplyMessage = message.Text()

		if message.UserID != nil {
			author, err := n.team.GetUser(ctx, *message.UserID)
			if err != nil {
				n.logger.Warn().Err(err).Str("user_id", *message.UserID).Msg("Could not load reply author")
			} else {
				notification.ReplyAuthor = author.Name()
			}
		}
	case message.Role == models.RoleUser:
		notification.OriginalMessage = message.Text()
	default:
		return MsgNotApplicable, nil
	}
	return "", nil
}

// send delivers the message to every recipient and returns the number delivered.
// Individual failures are logged.
func (n *Notifier) send(ctx context.Context, log zerolog.Logger, recipients []models.TeamMember, msg email.Message) int {
	var sent atomic.Int64

	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, recipient := range recipients {
		g.Go(func() error {
			out := msg
			out.ToEmail = recipient.EmailAddress()
			out.ToName = recipient.Name()
			if err := n.sender.Send(ctx, out); err != nil {
				log.Error().Err(err).Str("recipient_id", recipient.ID).Msg("Failed to send VIP notification")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load())
}

// Recipients keeps members who have an email address and have not opted out
func Recipients(members []models.TeamMember) []models.TeamMember {
	var recipients []models.TeamMember
	for _, m := range members {
		if m.EmailAddress() != "" && m.AllowsVipEmail() {
			recipients = append(recipients, m)
		}
	}
	return recipients
}
