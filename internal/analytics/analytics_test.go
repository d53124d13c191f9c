package analytics

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportcore/internal/database"
	"supportcore/internal/models"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return &Service{
		db:     sqlx.NewDb(mockDB, "sqlmock"),
		logger: zerolog.Nop(),
		now:    func() time.Time { return fixedNow },
	}, mock
}

func TestNewService_NilWriteClient(t *testing.T) {
	service, err := NewService(context.Background(), nil, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, service)
}

func TestNewService_CreatesTables(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS automation_events")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_automation_event_type")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_automation_created_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS automation_daily")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_automation_daily_date")).WillReturnResult(sqlmock.NewResult(0, 0))

	client := database.NewWriteClientFromDB(sqlx.NewDb(mockDB, "sqlmock"))
	service, err := NewService(context.Background(), client, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, service)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackEvent(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError bool
	}{
		{
			name: "event and aggregate written",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_events")).
					WithArgs(EventAssignment, 1, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_daily")).
					WithArgs("2024-03-15", EventAssignment, 1).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "aggregate failure is tolerated",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_events")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_daily")).
					WillReturnError(errors.New("deadlock"))
			},
		},
		{
			name: "event insert failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_events")).
					WillReturnError(errors.New("connection refused"))
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mock := newTestService(t)
			tt.setupMock(mock)

			err := service.TrackEvent(context.Background(), EventAssignment, 1, map[string]any{"mailbox_id": 7})
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecord_SwallowsErrors(t *testing.T) {
	service, mock := newTestService(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_events")).
		WillReturnError(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		service.Record(context.Background(), EventResolution, 1, nil)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOpenAIUsage(t *testing.T) {
	service, mock := newTestService(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_events")).
		WithArgs(EventOpenAICall, 1, `{"model":"gpt-4o-mini","operation":"chat","tokens":42}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO automation_daily")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	service.RecordOpenAIUsage(context.Background(), "chat", models.OpenAIUsage{TotalTokens: 42, Model: "gpt-4o-mini"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRange(t *testing.T) {
	midnight := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		period     string
		wantPeriod string
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{PeriodToday, PeriodToday, midnight, fixedNow},
		{PeriodYesterday, PeriodYesterday, midnight.AddDate(0, 0, -1), midnight},
		{PeriodLast7Days, PeriodLast7Days, fixedNow.AddDate(0, 0, -7), fixedNow},
		{PeriodLast30Days, PeriodLast30Days, fixedNow.AddDate(0, 0, -30), fixedNow},
		{"bogus", PeriodToday, midnight, fixedNow},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			period, start, end := periodRange(tt.period, fixedNow)
			assert.Equal(t, tt.wantPeriod, period)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestGetSummary(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM automation_daily")).
		WithArgs("2024-03-15", "2024-03-15").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "total"}).
			AddRow(EventAssignment, 12).
			AddRow(EventKeywordAssignment, 4).
			AddRow(EventResolution, 3).
			AddRow(EventAutoClose, 20).
			AddRow(EventVipNotification, 2).
			AddRow(EventOpenAICall, 9))
	mock.ExpectQuery(regexp.QuoteMeta("FROM automation_events")).
		WillReturnRows(sqlmock.NewRows([]string{"total_tokens"}).AddRow(1500))

	summary, err := service.GetSummary(context.Background(), PeriodToday)
	require.NoError(t, err)

	assert.Equal(t, PeriodToday, summary.Period)
	assert.Equal(t, 12, summary.Assignments)
	assert.Equal(t, 4, summary.KeywordAssignments)
	assert.Equal(t, 3, summary.Resolutions)
	assert.Equal(t, 20, summary.ConversationsClosed)
	assert.Equal(t, 2, summary.VipNotificationsSent)
	assert.Equal(t, 9, summary.OpenAICalls)
	assert.Equal(t, 1500, summary.OpenAITokensUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSummary_QueryError(t *testing.T) {
	service, mock := newTestService(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM automation_daily")).
		WillReturnError(errors.New("connection refused"))

	summary, err := service.GetSummary(context.Background(), PeriodLast7Days)
	assert.Error(t, err)
	assert.Nil(t, summary)
}
