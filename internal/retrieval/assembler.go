// Package retrieval assembles grounding context for AI-generated replies from
// the mailbox's knowledge bank, website pages and similar past conversations.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"supportcore/internal/embeddings"
	"supportcore/internal/models"
)

// Defaults for similarity search
const (
	DefaultSimilarityThreshold = 0.4
	MaxWebsitePages            = 5
	MaxPastConversations       = 3
	unlimited                  = 0
)

// Store scores the three corpora against a query embedding
type Store interface {
	SimilarKnowledgeBankEntries(ctx context.Context, mailboxID int64, embedding []float32, threshold float64, limit int) ([]models.KnowledgeBankEntry, error)
	SimilarWebsitePages(ctx context.Context, mailboxID int64, embedding []float32, threshold float64, limit int) ([]models.WebsitePage, error)
	SimilarConversations(ctx context.Context, mailboxID int64, embedding []float32, threshold float64, limit int, excludeSlug string) ([]models.SimilarConversation, error)
}

// TranscriptLoader loads a conversation's messages in chronological order
type TranscriptLoader interface {
	ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error)
}

// Assembler builds retrieval context. It has no side effects.
type Assembler struct {
	store       Store
	transcripts TranscriptLoader
	embedder    embeddings.Provider
	threshold   float64
	logger      zerolog.Logger
}

// NewAssembler creates an assembler; a non-positive threshold uses the default
func NewAssembler(store Store, transcripts TranscriptLoader, embedder embeddings.Provider, threshold float64, logger zerolog.Logger) *Assembler {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Assembler{
		store:       store,
		transcripts: transcripts,
		embedder:    embedder,
		threshold:   threshold,
		logger:      logger.With().Str("component", "retrieval").Logger(),
	}
}

// Assemble returns ranked knowledge-bank entries, website pages and past
// conversations above the similarity threshold, plus their prompt renderings.
// Embedding failures degrade to empty corpora; store failures are returned.
func (a *Assembler) Assemble(ctx context.Context, req models.RetrievalRequest) (*models.RetrievalContext, error) {
	result := &models.RetrievalContext{
		KnowledgeBank:     []models.KnowledgeBankEntry{},
		WebsitePages:      []models.WebsitePage{},
		PastConversations: []models.PastConversation{},
	}

	text, err := metadataText(req.Metadata)
	if err != nil {
		a.logger.Warn().Err(err).Int64("mailbox_id", req.MailboxID).Msg("Dropping unencodable metadata")
	}
	result.MetadataText = text

	embedding, ok := a.queryEmbedding(ctx, req)
	if !ok {
		return result, nil
	}

	var (
		entries       []models.KnowledgeBankEntry
		pages         []models.WebsitePage
		conversations []models.SimilarConversation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := a.store.SimilarKnowledgeBankEntries(gctx, req.MailboxID, embedding, a.threshold, unlimited)
		if err != nil {
			return err
		}
		entries = rank(found, func(e models.KnowledgeBankEntry) float64 { return e.Similarity }, a.threshold, unlimited)
		return nil
	})
	g.Go(func() error {
		found, err := a.store.SimilarWebsitePages(gctx, req.MailboxID, embedding, a.threshold, MaxWebsitePages)
		if err != nil {
			return err
		}
		pages = rank(found, func(p models.WebsitePage) float64 { return p.Similarity }, a.threshold, MaxWebsitePages)
		return nil
	})
	g.Go(func() error {
		found, err := a.store.SimilarConversations(gctx, req.MailboxID, embedding, a.threshold, MaxPastConversations, req.ExcludeConversationSlug)
		if err != nil {
			return err
		}
		conversations = rank(found, func(c models.SimilarConversation) float64 { return c.Similarity }, a.threshold, MaxPastConversations)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Error().Err(err).Int64("mailbox_id", req.MailboxID).Msg("Similarity search failed")
		return nil, fmt.Errorf("failed to search retrieval corpora: %w", err)
	}

	result.KnowledgeBank = entries
	result.WebsitePages = pages
	result.PastConversations = a.loadTranscripts(ctx, conversations)

	result.KnowledgeBankPrompt = knowledgeBankPrompt(result.KnowledgeBank)
	result.WebsitePagesPrompt = websitePagesPrompt(result.WebsitePages)
	result.PastConversationsPrompt = pastConversationsPrompt(result.PastConversations, req.Query)

	a.logger.Debug().
		Int64("mailbox_id", req.MailboxID).
		Int("knowledge_bank", len(result.KnowledgeBank)).
		Int("website_pages", len(result.WebsitePages)).
		Int("past_conversations", len(result.PastConversations)).
		Msg("Retrieval context assembled")

	return result, nil
}

// queryEmbedding returns the precomputed embedding or asks the provider.
// It reports false when no embedding is available.
func (a *Assembler) queryEmbedding(ctx context.Context, req models.RetrievalRequest) ([]float32, bool) {
	if len(req.QueryEmbedding) > 0 {
		return req.QueryEmbedding, true
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, false
	}

	embedding, err := a.embedder.Embed(ctx, req.Query)
	if err != nil {
		a.logger.Warn().Err(err).Int64("mailbox_id", req.MailboxID).Msg("Query embedding failed, returning empty retrieval context")
		return nil, false
	}
	return embedding, true
}

// loadTranscripts expands conversations into their transcripts concurrently,
// preserving rank order. A failed load drops that conversation only.
func (a *Assembler) loadTranscripts(ctx context.Context, conversations []models.SimilarConversation) []models.PastConversation {
	loaded := make([]*models.PastConversation, len(conversations))

	var wg sync.WaitGroup
	for i, conversation := range conversations {
		wg.Add(1)
		go func(i int, conversation models.SimilarConversation) {
			defer wg.Done()

			messages, err := a.transcripts.ListMessages(ctx, conversation.ID)
			if err != nil {
				a.logger.Warn().Err(err).Int64("conversation_id", conversation.ID).Msg("Skipping past conversation, transcript load failed")
				return
			}
			loaded[i] = &models.PastConversation{SimilarConversation: conversation, Messages: messages}
		}(i, conversation)
	}
	wg.Wait()

	past := make([]models.PastConversation, 0, len(conversations))
	for _, conversation := range loaded {
		if conversation != nil {
			past = append(past, *conversation)
		}
	}
	return past
}
