package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"supportcore/internal/models"
)

const mailboxColumns = `id, slug, name, vip_threshold, auto_close_enabled, auto_close_days_of_inactivity`

// InactiveConversation identifies a conversation selected for auto-close
type InactiveConversation struct {
	ID        int64     `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// MailboxStore reads mailbox settings and applies mailbox-wide bulk updates
type MailboxStore struct {
	db *sqlx.DB
}

// NewMailboxStore creates a mailbox store
func NewMailboxStore(writeClient *WriteClient) *MailboxStore {
	return &MailboxStore{db: writeClient.GetDB()}
}

// GetMailbox loads a mailbox by id
func (s *MailboxStore) GetMailbox(ctx context.Context, id int64) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes WHERE id = $1`
	if err := s.db.GetContext(ctx, &mailbox, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mailbox %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}
	return &mailbox, nil
}

// ListAutoCloseMailboxes returns mailboxes with auto-close enabled, optionally narrowed to one id
func (s *MailboxStore) ListAutoCloseMailboxes(ctx context.Context, mailboxID *int64) ([]models.Mailbox, error) {
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes
		WHERE auto_close_enabled = TRUE AND ($1::bigint IS NULL OR id = $1)
		ORDER BY id ASC`

	mailboxes := []models.Mailbox{}
	if err := s.db.SelectContext(ctx, &mailboxes, query, mailboxID); err != nil {
		return nil, fmt.Errorf("failed to list auto-close mailboxes: %w", err)
	}
	return mailboxes, nil
}

// ListInactiveConversations returns open conversations in the mailbox last updated before cutoff
func (s *MailboxStore) ListInactiveConversations(ctx context.Context, mailboxID int64, cutoff time.Time) ([]InactiveConversation, error) {
	query := `SELECT id, slug, updated_at FROM conversations
		WHERE mailbox_id = $1 AND status = $2 AND updated_at < $3 AND merged_into_id IS NULL
		ORDER BY id ASC`

	conversations := []InactiveConversation{}
	if err := s.db.SelectContext(ctx, &conversations, query, mailboxID, models.StatusOpen, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list inactive conversations: %w", err)
	}
	return conversations, nil
}

// CloseConversations closes the given conversations if they are still open and idle
// before cutoff, appending one audit event per closed row in the same transaction.
// Rows that changed since selection are left alone; the closed ids are returned.
func (s *MailboxStore) CloseConversations(ctx context.Context, mailboxID int64, ids []int64, cutoff, now time.Time) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}

	closed := []int64{}
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &closed, `
			UPDATE conversations
			SET status = $1, closed_at = $2, updated_at = $2
			WHERE mailbox_id = $3 AND id = ANY($4) AND status = $5 AND updated_at < $6
			RETURNING id`,
			models.StatusClosed, now, mailboxID, pq.Array(ids), models.StatusOpen, cutoff); err != nil {
			return fmt.Errorf("failed to close conversations: %w", err)
		}

		if len(closed) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_events (conversation_id, type, changes, reason, created_at)
			SELECT closed.id, $2, '{"status":"closed"}'::jsonb, $3, $4
			FROM unnest($1::bigint[]) AS closed(id)`,
			pq.Array(closed), models.EventUpdate, models.ReasonAutoClosed, now); err != nil {
			return fmt.Errorf("failed to record auto-close events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}
