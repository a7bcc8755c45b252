package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/server/router/api/v1/ai"
)

type generateMessageRequest struct {
	ConversationID   string   `json:"conversation_id"`
	Message          string   `json:"message"`
	ModelID          string   `json:"model_id"`
	Title            string   `json:"title"`
	WebSearchEnabled bool     `json:"web_search_enabled"`
	SearchMode       string   `json:"search_mode"`
	ReasoningEffort  string   `json:"reasoning_effort"`
	Images           []string `json:"images"`
}

type generateMessageResponse struct {
	Ok             bool   `json:"ok"`
	ConversationID string `json:"conversation_id"`
}

// GenerateMessage accepts a generation request and schedules the run.
// The response is an immediate ack; generation progress is observable
// by re-reading the conversation and its messages.
func (s *APIV1Service) GenerateMessage(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	req := &generateMessageRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.ModelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model_id is required")
	}

	conversation, err := s.Orchestrator.Generate(c.Request().Context(), userID, &ai.GenerateRequest{
		ConversationUID:  req.ConversationID,
		Message:          req.Message,
		ModelID:          req.ModelID,
		Title:            req.Title,
		WebSearchEnabled: req.WebSearchEnabled,
		SearchMode:       req.SearchMode,
		ReasoningEffort:  req.ReasoningEffort,
		Images:           req.Images,
	})
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrMessageRequired):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ai.ErrGenerationInFlight):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ai.ErrModelNotEnabled):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ai.ErrNotConfigured):
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start generation").SetInternal(err)
	}

	return c.JSON(http.StatusAccepted, &generateMessageResponse{
		Ok:             true,
		ConversationID: conversation.UID,
	})
}

type cancelGenerationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type cancelGenerationResponse struct {
	Ok        bool `json:"ok"`
	Cancelled bool `json:"cancelled"`
}

// CancelGeneration cancels the in-flight generation of a conversation.
// Cancelling an idle conversation returns cancelled=false, not an
// error.
func (s *APIV1Service) CancelGeneration(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	req := &cancelGenerationRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.ConversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}

	cancelled, err := s.Orchestrator.Cancel(c.Request().Context(), userID, req.ConversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, &cancelGenerationResponse{Ok: true, Cancelled: cancelled})
}
