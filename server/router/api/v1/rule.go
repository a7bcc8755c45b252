package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/store"
)

type rulePayload struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Content      string `json:"content"`
	AlwaysAttach bool   `json:"always_attach"`
	CreatedTs    int64  `json:"created_ts"`
	UpdatedTs    int64  `json:"updated_ts"`
}

func toRulePayload(r *store.Rule) *rulePayload {
	return &rulePayload{
		UID:          r.UID,
		Name:         r.Name,
		Content:      r.Content,
		AlwaysAttach: r.AlwaysAttach,
		CreatedTs:    r.CreatedTs,
		UpdatedTs:    r.UpdatedTs,
	}
}

// ListRules returns the caller's rules.
func (s *APIV1Service) ListRules(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	rules, err := s.Store.ListRules(c.Request().Context(), &store.FindRule{
		CreatorID: &userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list rules").SetInternal(err)
	}

	payload := make([]*rulePayload, 0, len(rules))
	for _, rule := range rules {
		payload = append(payload, toRulePayload(rule))
	}
	return c.JSON(http.StatusOK, payload)
}

type upsertRuleRequest struct {
	Name         string `json:"name"`
	Content      string `json:"content"`
	AlwaysAttach bool   `json:"always_attach"`
}

// CreateRule stores a new rule.
func (s *APIV1Service) CreateRule(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	req := &upsertRuleRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Name == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and content are required")
	}

	now := time.Now().Unix()
	rule, err := s.Store.CreateRule(c.Request().Context(), &store.Rule{
		UID:          shortuuid.New(),
		CreatorID:    userID,
		Name:         req.Name,
		Content:      req.Content,
		AlwaysAttach: req.AlwaysAttach,
		CreatedTs:    now,
		UpdatedTs:    now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create rule").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toRulePayload(rule))
}

func (s *APIV1Service) findOwnRule(c echo.Context) (*store.Rule, error) {
	userID := auth.UserIDFromContext(c)
	uid := c.Param("uid")

	rules, err := s.Store.ListRules(c.Request().Context(), &store.FindRule{
		UID:       &uid,
		CreatorID: &userID,
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get rule").SetInternal(err)
	}
	if len(rules) == 0 {
		return nil, echo.NewHTTPError(http.StatusNotFound, "rule not found")
	}
	return rules[0], nil
}

type updateRuleRequest struct {
	Name         *string `json:"name"`
	Content      *string `json:"content"`
	AlwaysAttach *bool   `json:"always_attach"`
}

// UpdateRule modifies a rule.
func (s *APIV1Service) UpdateRule(c echo.Context) error {
	rule, err := s.findOwnRule(c)
	if err != nil {
		return err
	}

	req := &updateRuleRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	now := time.Now().Unix()
	updated, err := s.Store.UpdateRule(c.Request().Context(), &store.UpdateRule{
		ID:           rule.ID,
		Name:         req.Name,
		Content:      req.Content,
		AlwaysAttach: req.AlwaysAttach,
		UpdatedTs:    &now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update rule").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toRulePayload(updated))
}

// DeleteRule removes a rule.
func (s *APIV1Service) DeleteRule(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	rule, err := s.findOwnRule(c)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteRule(c.Request().Context(), &store.DeleteRule{
		ID:        rule.ID,
		CreatorID: userID,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete rule").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
