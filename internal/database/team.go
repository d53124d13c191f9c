package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"supportcore/internal/models"
)

// maxNotificationRecipients bounds a single notification fan-out
const maxNotificationRecipients = 100

// TeamStore reads team members and their mailbox access
type TeamStore struct {
	db *sqlx.DB
}

// NewTeamStore creates a team store
func NewTeamStore(writeClient *WriteClient) *TeamStore {
	return &TeamStore{db: writeClient.GetDB()}
}

// ListMailboxMembers returns the mailbox's members in a stable order (by user id).
// The order is what the rotation counter indexes into.
func (s *TeamStore) ListMailboxMembers(ctx context.Context, mailboxID int64) ([]models.TeamMember, error) {
	query := `
		SELECT u.id, u.display_name, u.email, ma.role, COALESCE(ma.keywords, '{}') AS keywords, u.preferences
		FROM mailbox_members ma
		JOIN users u ON u.id = ma.user_id
		WHERE ma.mailbox_id = $1
		ORDER BY u.id ASC`

	members := []models.TeamMember{}
	if err := s.db.SelectContext(ctx, &members, query, mailboxID); err != nil {
		return nil, fmt.Errorf("failed to list mailbox members: %w", err)
	}
	return members, nil
}

// ListNotificationRecipients returns up to 100 members of the mailbox with their preferences
func (s *TeamStore) ListNotificationRecipients(ctx context.Context, mailboxID int64) ([]models.TeamMember, error) {
	query := `
		SELECT u.id, u.display_name, u.email, ma.role, u.preferences
		FROM mailbox_members ma
		JOIN users u ON u.id = ma.user_id
		WHERE ma.mailbox_id = $1
		ORDER BY u.id ASC
		LIMIT $2`

	members := []models.TeamMember{}
	if err := s.db.SelectContext(ctx, &members, query, mailboxID, maxNotificationRecipients); err != nil {
		return nil, fmt.Errorf("failed to list notification recipients: %w", err)
	}
	return members, nil
}

// GetUser loads a user's profile by id
func (s *TeamStore) GetUser(ctx context.Context, id string) (*models.TeamMember, error) {
	var member models.TeamMember
	query := `SELECT id, display_name, email FROM users WHERE id = $1`
	if err := s.db.GetContext(ctx, &member, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &member, nil
}
