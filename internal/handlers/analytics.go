package handlers

import (
	"context"
	"fmt"
	"net/http"

	"supportcore/internal/analytics"
	"supportcore/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Summarizer aggregates automation counts over a period
type Summarizer interface {
	GetSummary(ctx context.Context, period string) (*models.AutomationSummary, error)
}

// AnalyticsHandler returns analytics summary for a given period
// @Summary Get automation analytics summary
// @Description Get automation counts for a time period (today, yesterday, last_7_days, last_30_days)
// @Tags analytics
// @Produce json
// @Param period query string false "Time period (today, yesterday, last_7_days, last_30_days)" default(yesterday)
// @Success 200 {object} models.AnalyticsResponse
// @Failure 500 {object} models.AnalyticsResponse
// @Router /api/analytics [get]
func AnalyticsHandler(summarizer Summarizer, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		period := c.QueryParam("period")
		if period == "" {
			period = analytics.PeriodYesterday
		}

		summary, err := summarizer.GetSummary(c.Request().Context(), period)
		if err != nil {
			logger.Error().Err(err).Str("period", period).Msg("Failed to get analytics summary")
			return c.JSON(http.StatusInternalServerError, models.AnalyticsResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to get analytics summary: %v", err),
			})
		}

		logger.Debug().Str("period", summary.Period).Msg("Analytics summary retrieved")
		return c.JSON(http.StatusOK, models.AnalyticsResponse{
			Success: true,
			Summary: summary,
		})
	}
}
