package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"supportcore/internal/models"
)

const conversationColumns = `id, slug, subject, status, assigned_to_id, assigned_to_ai, mailbox_id,
	email_from, last_user_email_created_at, merged_into_id, is_prompt, closed_at, created_at, updated_at`

const messageColumns = `id, conversation_id, role, body, cleaned_up_text, reaction_type,
	reaction_created_at, response_to_id, user_id, created_at`

// ConversationStore reads and mutates conversations and their messages
type ConversationStore struct {
	db *sqlx.DB
}

// NewConversationStore creates a conversation store
func NewConversationStore(writeClient *WriteClient) *ConversationStore {
	return &ConversationStore{db: writeClient.GetDB()}
}

// GetConversation loads a conversation by id
func (s *ConversationStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	var conversation models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	if err := s.db.GetContext(ctx, &conversation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

// GetMessage loads a message by id
func (s *ConversationStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var message models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	if err := s.db.GetContext(ctx, &message, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// ListMessages returns the full transcript of a conversation in chronological order
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY id ASC`

	messages := []models.Message{}
	if err := s.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListUserMessages returns up to limit customer messages in chronological order
func (s *ConversationStore) ListUserMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1 AND role = $2
		ORDER BY id ASC
		LIMIT $3`

	messages := []models.Message{}
	if err := s.db.SelectContext(ctx, &messages, query, conversationID, models.RoleUser, limit); err != nil {
		return nil, fmt.Errorf("failed to list user messages: %w", err)
	}
	return messages, nil
}

// HasMessageAfter reports whether the conversation has a message with an id greater than messageID
func (s *ConversationStore) HasMessageAfter(ctx context.Context, conversationID, messageID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM messages WHERE conversation_id = $1 AND id > $2)`
	if err := s.db.GetContext(ctx, &exists, query, conversationID, messageID); err != nil {
		return false, fmt.Errorf("failed to check newer messages: %w", err)
	}
	return exists, nil
}

// HasMessageWithRole reports whether the conversation has any message with the given role
func (s *ConversationStore) HasMessageWithRole(ctx context.Context, conversationID int64, role models.MessageRole) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM messages WHERE conversation_id = $1 AND role = $2)`
	if err := s.db.GetContext(ctx, &exists, query, conversationID, role); err != nil {
		return false, fmt.Errorf("failed to check %s messages: %w", role, err)
	}
	return exists, nil
}

// LatestMessageByRole returns the most recent message with the given role
func (s *ConversationStore) LatestMessageByRole(ctx context.Context, conversationID int64, role models.MessageRole) (*models.Message, error) {
	var message models.Message
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1 AND role = $2
		ORDER BY id DESC
		LIMIT 1`
	if err := s.db.GetContext(ctx, &message, query, conversationID, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest %s message: %w", role, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest %s message: %w", role, err)
	}
	return &message, nil
}

// AssignConversation sets the assignee if the conversation is still unassigned and
// unmerged, recording an audit event in the same transaction. It reports false when
// another handler assigned or merged the conversation first.
func (s *ConversationStore) AssignConversation(ctx context.Context, conversationID int64, memberID, reason string) (bool, error) {
	changes, err := json.Marshal(map[string]string{"assignedToId": memberID})
	if err != nil {
		return false, fmt.Errorf("failed to encode event changes: %w", err)
	}

	assigned := false
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET assigned_to_id = $1, updated_at = NOW()
			WHERE id = $2
				AND assigned_to_id IS NULL
				AND assigned_to_ai = FALSE
				AND merged_into_id IS NULL`,
			memberID, conversationID)
		if err != nil {
			return fmt.Errorf("failed to assign conversation: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read assignment result: %w", err)
		}
		if rows == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_events (conversation_id, type, changes, reason, created_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			conversationID, models.EventUpdate, string(changes), reason); err != nil {
			return fmt.Errorf("failed to record assignment event: %w", err)
		}

		assigned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return assigned, nil
}
