package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"supportcore/internal/models"
)

// RetrievalStore scores knowledge-bank entries, website pages and past
// conversations against a query embedding using pgvector cosine distance.
type RetrievalStore struct {
	db *sqlx.DB
}

// NewRetrievalStore creates a retrieval store
func NewRetrievalStore(writeClient *WriteClient) *RetrievalStore {
	return &RetrievalStore{db: writeClient.GetDB()}
}

// limitArg maps a non-positive limit to NULL, which PostgreSQL treats as no limit
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

// SimilarKnowledgeBankEntries returns enabled entries with similarity above threshold, best first
func (s *RetrievalStore) SimilarKnowledgeBankEntries(ctx context.Context, mailboxID int64, embedding []float32, threshold float64, limit int) ([]models.KnowledgeBankEntry, error) {
	query := `
		SELECT id, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM knowledge_bank
		WHERE mailbox_id = $2
			AND enabled = TRUE
			AND embedding IS NOT NULL
			AND 1 - (embedding <=> $1::vector) > $3
		ORDER BY similarity DESC, id ASC
		LIMIT $4`

	entries := []models.KnowledgeBankEntry{}
	if err := s.db.SelectContext(ctx, &entries, query,
		pgvector.NewVector(embedding), mailboxID, threshold, limitArg(limit)); err != nil {
		return nil, fmt.Errorf("failed to search knowledge bank: %w", err)
	}
	return entries, nil
}

// SimilarWebsitePages returns live pages of the mailbox's live websites above threshold, best first
func (s *RetrievalStore) SimilarWebsitePages(ctx context.Context, mailboxID int64, embedding []float32, threshold float64, limit int) ([]models.WebsitePage, error) {
	query := `
		SELECT wp.id, wp.url, wp.page_title, wp.markdown, 1 - (wp.embedding <=> $1::vector) AS similarity
		FROM website_pages wp
		JOIN websites w ON w.id = wp.website_id AND w.deleted_at IS NULL AND w.mailbox_id = $2
		WHERE wp.deleted_at IS NULL
			AND wp.embedding IS NOT NULL
			AND 1 - (wp.embedding <=> $1::vector) > $3
		ORDER BY similarity DESC, wp.id ASC
		LIMIT $4`

	pages := []models.WebsitePage{}
	if err := s.db.SelectContext(ctx, &pages, query,
		pgvector.NewVector(embedding), mailboxID, threshold, limitArg(limit)); err != nil {
		return nil, fmt.Errorf("failed to search website pages: %w", err)
	}
	return pages, nil
}

// SimilarConversations returns unmerged, non-prompt conversations of the mailbox above
// threshold, best first, excluding the conversation identified by excludeSlug.
func (s *RetrievalStore) SimilarConversations(ctx context.Context, mailboxID int64, embedding []float32, threshold float64, limit int, excludeSlug string) ([]models.SimilarConversation, error) {
	query := `
		SELECT id, slug, subject, created_at, 1 - (embedding <=> $1::vector) AS similarity
		FROM conversations
		WHERE mailbox_id = $2
			AND is_prompt = FALSE
			AND merged_into_id IS NULL
			AND embedding IS NOT NULL
			AND ($5 = '' OR slug <> $5)
			AND 1 - (embedding <=> $1::vector) > $3
		ORDER BY similarity DESC, id ASC
		LIMIT $4`

	conversations := []models.SimilarConversation{}
	if err := s.db.SelectContext(ctx, &conversations, query,
		pgvector.NewVector(embedding), mailboxID, threshold, limitArg(limit), excludeSlug); err != nil {
		return nil, fmt.Errorf("failed to search past conversations: %w", err)
	}
	return conversations, nil
}
