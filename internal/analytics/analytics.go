package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"supportcore/internal/database"
	"supportcore/internal/models"
)

// EventType constants for tracking automation outcomes
const (
	EventAssignment        = "assignment"
	EventKeywordAssignment = "keyword_assignment"
	EventResolution        = "resolution"
	EventAutoClose         = "auto_close"
	EventVipNotification   = "vip_notification"
	EventOpenAICall        = "openai_call"
	EventSendGridCall      = "sendgrid_call"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// Recorder receives automation outcomes. Implementations must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, eventType string, count int, metadata map[string]any)
}

// Noop discards everything it is given
type Noop struct{}

// Record implements Recorder
func (Noop) Record(context.Context, string, int, map[string]any) {}

// RecordOpenAIUsage implements openai.UsageRecorder
func (Noop) RecordOpenAIUsage(context.Context, string, models.OpenAIUsage) {}

// Service handles analytics tracking and retrieval
type Service struct {
	db     *sqlx.DB
	logger zerolog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewService creates a new analytics service
func NewService(ctx context.Context, writeClient *database.WriteClient, logger zerolog.Logger) (*Service, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for analytics service")
	}

	service := &Service{
		db:     writeClient.GetDB(),
		logger: logger.With().Str("component", "analytics").Logger(),
		now:    time.Now,
	}

	if err := service.createTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to create analytics tables: %w", err)
	}

	return service, nil
}

// createTables creates the analytics tables in the database
func (s *Service) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS automation_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			count INT DEFAULT 1,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_automation_event_type ON automation_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_automation_created_at ON automation_events(created_at)`,
		// Daily aggregates table for faster queries
		`CREATE TABLE IF NOT EXISTS automation_daily (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			total_count INT DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(date, event_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_automation_daily_date ON automation_daily(date)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

// TrackEvent records an automation event and bumps its daily aggregate
func (s *Service) TrackEvent(ctx context.Context, eventType string, count int, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON *string
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			str := string(jsonBytes)
			metadataJSON = &str
		}
	}

	query := `INSERT INTO automation_events (event_type, count, metadata) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, eventType, count, metadataJSON); err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	today := s.now().UTC().Format("2006-01-02")
	aggregateQuery := `
		INSERT INTO automation_daily (date, event_type, total_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (date, event_type) DO UPDATE SET
			total_count = automation_daily.total_count + EXCLUDED.total_count,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, aggregateQuery, today, eventType, count); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to update daily aggregate")
	}

	return nil
}

// Record implements Recorder, logging instead of returning tracking failures
func (s *Service) Record(ctx context.Context, eventType string, count int, metadata map[string]any) {
	if err := s.TrackEvent(ctx, eventType, count, metadata); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record automation event")
	}
}

// RecordOpenAIUsage tracks one billable OpenAI call
func (s *Service) RecordOpenAIUsage(ctx context.Context, operation string, usage models.OpenAIUsage) {
	s.Record(ctx, EventOpenAICall, 1, map[string]any{
		"operation": operation,
		"tokens":    usage.TotalTokens,
		"model":     usage.Model,
	})
}

// periodRange resolves a period name to its UTC time range
func periodRange(period string, now time.Time) (string, time.Time, time.Time) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodYesterday:
		return period, midnight.AddDate(0, 0, -1), midnight
	case PeriodLast7Days:
		return period, now.AddDate(0, 0, -7), now
	case PeriodLast30Days:
		return period, now.AddDate(0, 0, -30), now
	default:
		return PeriodToday, midnight, now
	}
}

// GetSummary retrieves the automation summary for a time period
func (s *Service) GetSummary(ctx context.Context, period string) (*models.AutomationSummary, error) {
	period, startDate, endDate := periodRange(period, s.now())

	summary := &models.AutomationSummary{
		Period:    period,
		StartDate: startDate,
		EndDate:   endDate,
	}

	query := `
		SELECT event_type, COALESCE(SUM(total_count), 0) AS total
		FROM automation_daily
		WHERE date >= $1 AND date <= $2
		GROUP BY event_type
	`

	rows, err := s.db.QueryContext(ctx, query, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eventType string
		var total int
		if err := rows.Scan(&eventType, &total); err != nil {
			continue
		}

		switch eventType {
		case EventAssignment:
			summary.Assignments = total
		case EventKeywordAssignment:
			summary.KeywordAssignments = total
		case EventResolution:
			summary.Resolutions = total
		case EventAutoClose:
			summary.ConversationsClosed = total
		case EventVipNotification:
			summary.VipNotificationsSent = total
		case EventOpenAICall:
			summary.OpenAICalls = total
		case EventSendGridCall:
			summary.SendGridEmailsSent = total
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analytics summary: %w", err)
	}

	tokenQuery := `
		SELECT COALESCE(SUM((metadata->>'tokens')::int), 0) AS total_tokens
		FROM automation_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at <= $3
		AND metadata->>'tokens' IS NOT NULL
	`
	var totalTokens int
	if err := s.db.QueryRowContext(ctx, tokenQuery, EventOpenAICall, startDate, endDate).Scan(&totalTokens); err == nil {
		summary.OpenAITokensUsed = totalTokens
	}

	return summary, nil
}
