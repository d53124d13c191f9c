package models

import "time"

// KnowledgeBankEntry is an enabled knowledge-bank item scored against a query
type KnowledgeBankEntry struct {
	ID         int64   `db:"id" json:"id"`
	Content    string  `db:"content" json:"content"`
	Similarity float64 `db:"similarity" json:"similarity"`
}

// WebsitePage is a crawled page scored against a query
type WebsitePage struct {
	ID         int64   `db:"id" json:"id"`
	URL        string  `db:"url" json:"url"`
	PageTitle  string  `db:"page_title" json:"page_title"`
	Markdown   string  `db:"markdown" json:"markdown"`
	Similarity float64 `db:"similarity" json:"similarity"`
}

// SimilarConversation is a past conversation scored against a query
type SimilarConversation struct {
	ID         int64     `db:"id" json:"id"`
	Slug       string    `db:"slug" json:"slug"`
	Subject    *string   `db:"subject" json:"subject,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	Similarity float64   `db:"similarity" json:"similarity"`
}

// PastConversation is a similar conversation expanded into its transcript
type PastConversation struct {
	SimilarConversation
	Messages []Message `json:"messages"`
}

// RetrievalRequest asks for grounding context for a reply
// @Description Retrieval request payload
type RetrievalRequest struct {
	MailboxID               int64          `json:"mailbox_id" example:"1"`
	Query                   string         `json:"query" example:"How do I get a refund?"`
	QueryEmbedding          []float32      `json:"query_embedding,omitempty"`
	ExcludeConversationSlug string         `json:"exclude_conversation_slug,omitempty" example:"abc123"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// RetrievalContext is the assembled grounding context
// @Description Retrieval context response payload
type RetrievalContext struct {
	KnowledgeBank           []KnowledgeBankEntry `json:"knowledge_bank"`
	WebsitePages            []WebsitePage        `json:"website_pages"`
	PastConversations       []PastConversation   `json:"past_conversations"`
	KnowledgeBankPrompt     string               `json:"knowledge_bank_prompt,omitempty"`
	WebsitePagesPrompt      string               `json:"website_pages_prompt,omitempty"`
	PastConversationsPrompt string               `json:"past_conversations_prompt,omitempty"`
	MetadataText            string               `json:"metadata_text,omitempty"`
}
