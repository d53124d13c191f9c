package retrieval

import (
	"encoding/json"
	"fmt"
	"strings"

	"supportcore/internal/models"
)

const pastConversationsTemplate = `Here are some past conversations with customers that were similar to the current query. ` +
	`Use them to understand how similar issues were handled, but do not reference them directly in your reply.

{{PAST_CONVERSATIONS}}

Current customer query:
{{USER_QUERY}}`

// pastConversationDateLayout matches the month/day/year rendering agents see in the inbox
const pastConversationDateLayout = "1/2/2006"

func knowledgeBankPrompt(entries []models.KnowledgeBankEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The following are entries from the knowledge bank. Use them as the primary source of truth:\n")
	for _, entry := range entries {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(entry.Content))
	}
	return b.String()
}

func websitePagesPrompt(pages []models.WebsitePage) string {
	if len(pages) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The following pages from the company website may be relevant:\n")
	for _, page := range pages {
		fmt.Fprintf(&b, "\n--- Page: %s (%s) ---\n%s\n", page.PageTitle, page.URL, strings.TrimSpace(page.Markdown))
	}
	return strings.TrimRight(b.String(), "\n")
}

// conversationBlock renders one past conversation transcript
func conversationBlock(conversation models.PastConversation) string {
	var b strings.Builder
	b.WriteString("--- Conversation Start ---\n")
	fmt.Fprintf(&b, "Date: %s\n", conversation.CreatedAt.Format(pastConversationDateLayout))

	turns := make([]string, 0, len(conversation.Messages))
	for _, message := range conversation.Messages {
		speaker := "Agent"
		if message.Role == models.RoleUser {
			speaker = "Customer"
		}
		turns = append(turns, speaker+":\n"+message.Text())
	}
	b.WriteString(strings.Join(turns, "\n"))
	b.WriteString("\n--- Conversation End ---")
	return b.String()
}

func pastConversationsPrompt(conversations []models.PastConversation, query string) string {
	if len(conversations) == 0 {
		return ""
	}

	blocks := make([]string, len(conversations))
	for i, conversation := range conversations {
		blocks[i] = conversationBlock(conversation)
	}

	// Single pass so transcript text is never re-expanded
	return strings.NewReplacer(
		"{{PAST_CONVERSATIONS}}", strings.Join(blocks, "\n\n"),
		"{{USER_QUERY}}", query,
	).Replace(pastConversationsTemplate)
}

func metadataText(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	encoded, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return "User metadata:\n" + string(encoded), nil
}
