package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"supportcore/internal/models"
)

func eventTypeArray(types []models.EventType) pq.StringArray {
	values := make(pq.StringArray, len(types))
	for i, t := range types {
		values[i] = string(t)
	}
	return values
}

// HasEventOfType reports whether any of the given audit event types exist on the conversation
func (s *ConversationStore) HasEventOfType(ctx context.Context, conversationID int64, types ...models.EventType) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
		SELECT 1 FROM conversation_events WHERE conversation_id = $1 AND type = ANY($2)
	)`
	if err := s.db.GetContext(ctx, &exists, query, conversationID, eventTypeArray(types)); err != nil {
		return false, fmt.Errorf("failed to check conversation events: %w", err)
	}
	return exists, nil
}

// InsertEventUnlessExists records an audit event unless one of the guard types is
// already present, in a single statement. It reports whether a row was inserted.
func (s *ConversationStore) InsertEventUnlessExists(ctx context.Context, conversationID int64, eventType models.EventType, reason string, guardTypes ...models.EventType) (bool, error) {
	if len(guardTypes) == 0 {
		guardTypes = []models.EventType{eventType}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_events (conversation_id, type, changes, reason, created_at)
		SELECT $1, $2, '{}'::jsonb, $3, NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM conversation_events WHERE conversation_id = $1 AND type = ANY($4)
		)`,
		conversationID, eventType, reason, eventTypeArray(guardTypes))
	if err != nil {
		return false, fmt.Errorf("failed to insert %s event: %w", eventType, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows > 0, nil
}
