package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"supportcore/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	period string
	err    error
}

func (f *fakeSummarizer) GetSummary(_ context.Context, period string) (*models.AutomationSummary, error) {
	f.period = period
	if f.err != nil {
		return nil, f.err
	}
	return &models.AutomationSummary{Period: period, Assignments: 3, ConversationsClosed: 12}, nil
}

func TestAnalyticsHandler(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		err            error
		expectedStatus int
		expectedPeriod string
	}{
		{"defaults to yesterday", "/api/analytics", nil, http.StatusOK, "yesterday"},
		{"explicit period", "/api/analytics?period=last_7_days", nil, http.StatusOK, "last_7_days"},
		{"summary failure", "/api/analytics?period=today", errors.New("db down"), http.StatusInternalServerError, "today"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summarizer := &fakeSummarizer{err: tt.err}
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()

			require.NoError(t, AnalyticsHandler(summarizer, zerolog.Nop())(e.NewContext(req, rec)))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedPeriod, summarizer.period)

			var response models.AnalyticsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			if tt.err != nil {
				assert.False(t, response.Success)
				assert.Contains(t, response.Error, "db down")
				return
			}
			assert.True(t, response.Success)
			assert.Equal(t, 12, response.Summary.ConversationsClosed)
		})
	}
}
