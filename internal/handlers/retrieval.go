package handlers

import (
	"context"
	"net/http"
	"strings"

	"supportcore/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ContextAssembler builds retrieval context for a reply
type ContextAssembler interface {
	Assemble(ctx context.Context, req models.RetrievalRequest) (*models.RetrievalContext, error)
}

// RetrievalHandler assembles grounding context for a draft reply
// @Summary Assemble retrieval context
// @Description Returns knowledge-bank entries, website pages and past conversations similar to the query
// @Tags retrieval
// @Accept json
// @Produce json
// @Param request body models.RetrievalRequest true "Retrieval request"
// @Success 200 {object} models.RetrievalContext
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/retrieval [post]
func RetrievalHandler(assembler ContextAssembler, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.RetrievalRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		}
		if req.MailboxID <= 0 {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "mailbox_id is required"})
		}
		if strings.TrimSpace(req.Query) == "" && len(req.QueryEmbedding) == 0 {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "query or query_embedding is required"})
		}

		result, err := assembler.Assemble(c.Request().Context(), req)
		if err != nil {
			logger.Error().Err(err).Int64("mailbox_id", req.MailboxID).Msg("Failed to assemble retrieval context")
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to assemble retrieval context"})
		}

		return c.JSON(http.StatusOK, result)
	}
}
