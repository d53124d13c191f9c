package models

import "time"

// AutomationSummary represents aggregated automation counts for a time period
type AutomationSummary struct {
	Period               string    `json:"period"` // "today", "yesterday", "last_7_days", "last_30_days"
	Assignments          int       `json:"assignments"`
	KeywordAssignments   int       `json:"keyword_assignments"`
	Resolutions          int       `json:"resolutions"`
	ConversationsClosed  int       `json:"conversations_closed"`
	VipNotificationsSent int       `json:"vip_notifications_sent"`
	OpenAICalls          int       `json:"openai_calls"`
	OpenAITokensUsed     int       `json:"openai_tokens_used"`
	SendGridEmailsSent   int       `json:"sendgrid_emails_sent"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool               `json:"success" example:"true"`
	Summary *AutomationSummary `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty" example:""`
}

// OpenAIUsage represents OpenAI API usage details
type OpenAIUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}
