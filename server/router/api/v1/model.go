package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/store"
)

type enabledModelPayload struct {
	ID              int32   `json:"id"`
	ModelID         string  `json:"model_id"`
	Provider        string  `json:"provider"`
	Modality        string  `json:"modality"`
	PromptPrice     float64 `json:"prompt_price"`
	CompletionPrice float64 `json:"completion_price"`
}

// ListEnabledModels returns the models the caller may generate with.
func (s *APIV1Service) ListEnabledModels(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	models, err := s.Store.ListEnabledModels(c.Request().Context(), &store.FindEnabledModel{
		UserID: &userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list models").SetInternal(err)
	}

	payload := make([]*enabledModelPayload, 0, len(models))
	for _, model := range models {
		payload = append(payload, &enabledModelPayload{
			ID:              model.ID,
			ModelID:         model.ModelID,
			Provider:        model.Provider,
			Modality:        string(model.Modality),
			PromptPrice:     model.PromptPrice,
			CompletionPrice: model.CompletionPrice,
		})
	}
	return c.JSON(http.StatusOK, payload)
}

type enableModelRequest struct {
	ModelID         string  `json:"model_id"`
	Provider        string  `json:"provider"`
	Modality        string  `json:"modality"`
	PromptPrice     float64 `json:"prompt_price"`
	CompletionPrice float64 `json:"completion_price"`
}

// EnableModel enables a model explicitly with a pricing snapshot.
func (s *APIV1Service) EnableModel(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	req := &enableModelRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.ModelID == "" || req.Provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model_id and provider are required")
	}

	modality := store.Modality(req.Modality)
	switch modality {
	case store.ModalityText, store.ModalityImage, store.ModalityVideo:
	case "":
		modality = store.ModalityText
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown modality")
	}

	model, err := s.Store.CreateEnabledModel(c.Request().Context(), &store.EnabledModel{
		UserID:          userID,
		ModelID:         req.ModelID,
		Provider:        req.Provider,
		Modality:        modality,
		PromptPrice:     req.PromptPrice,
		CompletionPrice: req.CompletionPrice,
		CreatedTs:       time.Now().Unix(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enable model").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &enabledModelPayload{
		ID:              model.ID,
		ModelID:         model.ModelID,
		Provider:        model.Provider,
		Modality:        string(model.Modality),
		PromptPrice:     model.PromptPrice,
		CompletionPrice: model.CompletionPrice,
	})
}

// DisableModel removes an enabled model.
func (s *APIV1Service) DisableModel(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid model id")
	}

	if err := s.Store.DeleteEnabledModel(c.Request().Context(), &store.DeleteEnabledModel{
		ID:     int32(id),
		UserID: userID,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to disable model").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
