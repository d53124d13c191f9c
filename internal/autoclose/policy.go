// Package autoclose closes conversations that stayed open without activity for
// longer than their mailbox allows.
package autoclose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"supportcore/internal/analytics"
	"supportcore/internal/database"
	"supportcore/internal/models"
)

// maxConcurrentMailboxes bounds inline fan-out
const maxConcurrentMailboxes = 4

// Store is the mailbox and conversation access the policy needs
type Store interface {
	GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error)
	ListAutoCloseMailboxes(ctx context.Context, mailboxID *int64) ([]models.Mailbox, error)
	ListInactiveConversations(ctx context.Context, mailboxID int64, cutoff time.Time) ([]database.InactiveConversation, error)
	CloseConversations(ctx context.Context, mailboxID int64, ids []int64, cutoff, now time.Time) ([]int64, error)
}

// Dispatcher hands a per-mailbox job to another worker
type Dispatcher interface {
	Dispatch(ctx context.Context, mailboxID int64) error
}

// Report summarizes one top-level run
type Report struct {
	Processed  int             `json:"processed"`
	Dispatched int             `json:"dispatched,omitempty"`
	Message    string          `json:"message"`
	Mailboxes  []MailboxReport `json:"mailboxReports,omitempty"`
}

// MailboxReport summarizes one per-mailbox job
type MailboxReport struct {
	MailboxID             int64                           `json:"mailboxId"`
	MailboxName           string                          `json:"mailboxName"`
	InactiveConversations []database.InactiveConversation `json:"inactiveConversations"`
	ConversationsClosed   int                             `json:"conversationsClosed"`
	Status                string                          `json:"status"`
}

// Policy runs auto-close over the mailboxes that enable it
type Policy struct {
	store      Store
	dispatcher Dispatcher
	recorder   analytics.Recorder
	now        func() time.Time
	logger     zerolog.Logger
}

// NewPolicy creates a policy. A nil dispatcher runs per-mailbox jobs in-process.
func NewPolicy(store Store, dispatcher Dispatcher, recorder analytics.Recorder, logger zerolog.Logger) *Policy {
	if recorder == nil {
		recorder = analytics.Noop{}
	}
	return &Policy{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		now:        time.Now,
		logger:     logger.With().Str("component", "autoclose").Logger(),
	}
}

// Run selects the auto-close mailboxes, optionally narrowed to mailboxID, and
// runs or dispatches one job per mailbox. Failed mailboxes do not stop the others.
func (p *Policy) Run(ctx context.Context, mailboxID *int64) (*Report, error) {
	mailboxes, err := p.store.ListAutoCloseMailboxes(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	if len(mailboxes) == 0 {
		p.logger.Info().Msg("No mailboxes with auto-close enabled found")
		return &Report{Processed: 0, Message: "No mailboxes with auto-close enabled found"}, nil
	}

	if p.dispatcher != nil {
		return p.dispatch(ctx, mailboxes)
	}

	reports := make([]*MailboxReport, len(mailboxes))
	errs := make([]error, len(mailboxes))

	var g errgroup.Group
	g.SetLimit(maxConcurrentMailboxes)
	for i := range mailboxes {
		g.Go(func() error {
			reports[i], errs[i] = p.closeForMailbox(ctx, &mailboxes[i])
			if errs[i] != nil {
				p.logger.Error().Err(errs[i]).Int64("mailbox_id", mailboxes[i].ID).Msg("Auto-close failed for mailbox")
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for _, r := range reports {
		if r == nil {
			continue
		}
		report.Processed += r.ConversationsClosed
		report.Mailboxes = append(report.Mailboxes, *r)
	}
	report.Message = fmt.Sprintf("Auto-closed %d inactive conversations", report.Processed)

	if err := errors.Join(errs...); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Policy) dispatch(ctx context.Context, mailboxes []models.Mailbox) (*Report, error) {
	var errs []error
	report := &Report{}
	for _, mailbox := range mailboxes {
		if err := p.dispatcher.Dispatch(ctx, mailbox.ID); err != nil {
			p.logger.Error().Err(err).Int64("mailbox_id", mailbox.ID).Msg("Failed to dispatch auto-close job")
			errs = append(errs, fmt.Errorf("mailbox %d: %w", mailbox.ID, err))
			continue
		}
		report.Dispatched++
	}
	report.Message = fmt.Sprintf("Dispatched auto-close for %d mailboxes", report.Dispatched)
	return report, errors.Join(errs...)
}

// CloseMailbox runs the per-mailbox job for one mailbox
func (p *Policy) CloseMailbox(ctx context.Context, mailboxID int64) (*MailboxReport, error) {
	mailbox, err := p.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if !mailbox.AutoCloseEnabled {
		return &MailboxReport{
			MailboxID:             mailbox.ID,
			MailboxName:           mailbox.Name,
			InactiveConversations: []database.InactiveConversation{},
			Status:                "Auto-close disabled",
		}, nil
	}
	return p.closeForMailbox(ctx, mailbox)
}

func (p *Policy) closeForMailbox(ctx context.Context, mailbox *models.Mailbox) (*MailboxReport, error) {
	now := p.now().UTC().Truncate(time.Minute)
	cutoff := Cutoff(now, mailbox.InactivityDays())

	log := p.logger.With().
		Int64("mailbox_id", mailbox.ID).
		Str("mailbox", mailbox.Name).
		Time("cutoff", cutoff).
		Logger()

	report := &MailboxReport{
		MailboxID:   mailbox.ID,
		MailboxName: mailbox.Name,
	}

	candidates, err := p.store.ListInactiveConversations(ctx, mailbox.ID, cutoff)
	if err != nil {
		return nil, err
	}
	report.InactiveConversations = inactiveBefore(candidates, cutoff)

	if len(report.InactiveConversations) == 0 {
		report.Status = "No inactive conversations found"
		log.Info().Msg(report.Status)
		return report, nil
	}

	ids := make([]int64, len(report.InactiveConversations))
	for i, c := range report.InactiveConversations {
		ids[i] = c.ID
	}

	closed, err := p.store.CloseConversations(ctx, mailbox.ID, ids, cutoff, now)
	if err != nil {
		return nil, err
	}

	report.ConversationsClosed = len(closed)
	report.Status = fmt.Sprintf("Successfully closed %d conversations", len(closed))
	log.Info().Int("found", len(ids)).Int("closed", len(closed)).Msg("Auto-closed inactive conversations")

	if len(closed) > 0 {
		p.recorder.Record(ctx, analytics.EventAutoClose, len(closed), map[string]any{"mailbox_id": mailbox.ID})
	}
	return report, nil
}

// Cutoff returns the instant before which a conversation counts as inactive
func Cutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// inactiveBefore keeps conversations last updated strictly before cutoff
func inactiveBefore(conversations []database.InactiveConversation, cutoff time.Time) []database.InactiveConversation {
	inactive := make([]database.InactiveConversation, 0, len(conversations))
	for _, c := range conversations {
		if c.UpdatedAt.Before(cutoff) {
			inactive = append(inactive, c)
		}
	}
	return inactive
}
