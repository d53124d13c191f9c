package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"supportcore/internal/assignment"
	"supportcore/internal/autoclose"
	"supportcore/internal/database"
	"supportcore/internal/models"
	"supportcore/internal/resolution"
	"supportcore/internal/vip"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Assigner routes conversations that asked for a human
type Assigner interface {
	HandleHumanSupportRequested(ctx context.Context, conversationID int64) (*assignment.Result, error)
}

// ResolutionChecker decides whether a conversation was resolved
type ResolutionChecker interface {
	HandleCheckResolution(ctx context.Context, conversationID, messageID int64) (*resolution.Result, error)
}

// AutoCloser closes inactive conversations
type AutoCloser interface {
	Run(ctx context.Context, mailboxID *int64) (*autoclose.Report, error)
	CloseMailbox(ctx context.Context, mailboxID int64) (*autoclose.MailboxReport, error)
}

// VipNotifier emails the team about VIP customer messages
type VipNotifier interface {
	HandleMessageCreated(ctx context.Context, messageID int64) (*vip.Result, error)
}

// Automations groups the event-driven components
type Automations struct {
	Router     Assigner
	Resolution ResolutionChecker
	AutoClose  AutoCloser
	Vip        VipNotifier
}

var errInvalidPayload = errors.New("invalid event payload")

// skippedResult is returned when the referenced entity has disappeared
type skippedResult struct {
	Status  models.Outcome `json:"status"`
	Message string         `json:"message"`
}

// EventsHandler dispatches a scheduler delivery to its automation
// @Summary Handle an automation event
// @Description Runs the automation bound to the event name and reports its outcome
// @Tags events
// @Accept json
// @Produce json
// @Param event body models.EventRequest true "Event delivery"
// @Success 200 {object} models.EventResponse
// @Failure 400 {object} models.EventResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.EventResponse
// @Router /api/events [post]
func EventsHandler(automations Automations, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.EventRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.EventResponse{Error: "invalid request body"})
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		response := models.EventResponse{ID: req.ID, Name: req.Name}

		log := logger.With().Str("event_id", req.ID).Str("event", req.Name).Logger()
		ctx := log.WithContext(c.Request().Context())

		result, err := automations.dispatch(ctx, req)
		switch {
		case err == nil:
			response.Result = result
			log.Info().Msg("Event handled")
			return c.JSON(http.StatusOK, response)
		case errors.Is(err, errInvalidPayload):
			response.Error = err.Error()
			log.Warn().Err(err).Msg("Rejected event")
			return c.JSON(http.StatusBadRequest, response)
		case errors.Is(err, database.ErrNotFound):
			response.Result = skippedResult{Status: models.OutcomeSkipped, Message: err.Error()}
			log.Info().Err(err).Msg("Event skipped, entity not found")
			return c.JSON(http.StatusOK, response)
		default:
			response.Error = err.Error()
			log.Error().Err(err).Msg("Event handling failed")
			return c.JSON(http.StatusInternalServerError, response)
		}
	}
}

func (a Automations) dispatch(ctx context.Context, req models.EventRequest) (any, error) {
	switch req.Name {
	case models.EventHumanSupportRequested:
		var data models.HumanSupportRequestedData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.ConversationID <= 0 {
			return nil, fmt.Errorf("%w: conversationId is required", errInvalidPayload)
		}
		return a.Router.HandleHumanSupportRequested(ctx, data.ConversationID)

	case models.EventCheckResolution:
		var data models.CheckResolutionData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.ConversationID <= 0 || data.MessageID <= 0 {
			return nil, fmt.Errorf("%w: conversationId and messageId are required", errInvalidPayload)
		}
		return a.Resolution.HandleCheckResolution(ctx, data.ConversationID, data.MessageID)

	case models.EventAutoCloseCheck:
		var data models.AutoCloseCheckData
		if len(req.Data) > 0 {
			if err := decode(req.Data, &data); err != nil {
				return nil, err
			}
		}
		return a.AutoClose.Run(ctx, data.MailboxID)

	case models.EventAutoCloseMailbox:
		var data models.AutoCloseMailboxData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.MailboxID <= 0 {
			return nil, fmt.Errorf("%w: mailboxId is required", errInvalidPayload)
		}
		return a.AutoClose.CloseMailbox(ctx, data.MailboxID)

	case models.EventMessageCreated:
		var data models.MessageCreatedData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.MessageID <= 0 {
			return nil, fmt.Errorf("%w: messageId is required", errInvalidPayload)
		}
		return a.Vip.HandleMessageCreated(ctx, data.MessageID)
	}

	return nil, fmt.Errorf("%w: unknown event %q", errInvalidPayload, req.Name)
}

func decode(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", errInvalidPayload)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}
