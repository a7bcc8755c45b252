package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/store"
)

type conversationPayload struct {
	UID        string   `json:"uid"`
	Title      string   `json:"title"`
	ParentUID  *string  `json:"parent_uid,omitempty"`
	Generating bool     `json:"generating"`
	CostUsd    float64  `json:"cost_usd"`
	Pinned     bool     `json:"pinned"`
	Public     bool     `json:"public"`
	CreatedTs  int64    `json:"created_ts"`
	UpdatedTs  int64    `json:"updated_ts"`
}

func toConversationPayload(c *store.Conversation) *conversationPayload {
	return &conversationPayload{
		UID:        c.UID,
		Title:      c.Title,
		ParentUID:  c.ParentUID,
		Generating: c.Generating,
		CostUsd:    c.CostUsd,
		Pinned:     c.Pinned,
		Public:     c.Public,
		CreatedTs:  c.CreatedTs,
		UpdatedTs:  c.UpdatedTs,
	}
}

type messagePayload struct {
	UID         string             `json:"uid"`
	Role        string             `json:"role"`
	Content     string             `json:"content"`
	ContentHTML *string            `json:"content_html,omitempty"`
	Reasoning   *string            `json:"reasoning,omitempty"`
	Error       *string            `json:"error,omitempty"`
	ModelID     string             `json:"model_id,omitempty"`
	Provider    string             `json:"provider,omitempty"`
	TokenCount  *int32             `json:"token_count,omitempty"`
	CostUsd     *float64           `json:"cost_usd,omitempty"`
	Annotations []store.Annotation `json:"annotations"`
	Suggestions []string           `json:"suggestions"`
	CreatedTs   int64              `json:"created_ts"`
	UpdatedTs   int64              `json:"updated_ts"`
}

func toMessagePayload(m *store.Message) *messagePayload {
	return &messagePayload{
		UID:         m.UID,
		Role:        string(m.Role),
		Content:     m.Content,
		ContentHTML: m.ContentHTML,
		Reasoning:   m.Reasoning,
		Error:       m.Error,
		ModelID:     m.ModelID,
		Provider:    m.Provider,
		TokenCount:  m.TokenCount,
		CostUsd:     m.CostUsd,
		Annotations: m.Annotations,
		Suggestions: m.Suggestions,
		CreatedTs:   m.CreatedTs,
		UpdatedTs:   m.UpdatedTs,
	}
}

// ListConversations returns the caller's conversations, pinned first.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	userID := auth.UserIDFromContext(c)

	conversations, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{
		CreatorID: &userID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations").SetInternal(err)
	}

	payload := make([]*conversationPayload, 0, len(conversations))
	for _, conversation := range conversations {
		payload = append(payload, toConversationPayload(conversation))
	}
	return c.JSON(http.StatusOK, payload)
}

func (s *APIV1Service) findOwnConversation(c echo.Context) (*store.Conversation, error) {
	userID := auth.UserIDFromContext(c)
	uid := c.Param("uid")

	conversation, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{
		UID:       &uid,
		CreatorID: &userID,
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get conversation").SetInternal(err)
	}
	if conversation == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return conversation, nil
}

// GetConversation returns one conversation.
func (s *APIV1Service) GetConversation(c echo.Context) error {
	conversation, err := s.findOwnConversation(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toConversationPayload(conversation))
}

// ListConversationMessages returns the ordered messages of a
// conversation. Reading mid-generation is safe: snapshot writes keep
// every row internally consistent.
func (s *APIV1Service) ListConversationMessages(c echo.Context) error {
	conversation, err := s.findOwnConversation(c)
	if err != nil {
		return err
	}

	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{
		ConversationID: &conversation.ID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages").SetInternal(err)
	}

	payload := make([]*messagePayload, 0, len(messages))
	for _, message := range messages {
		payload = append(payload, toMessagePayload(message))
	}
	return c.JSON(http.StatusOK, payload)
}

type updateConversationRequest struct {
	Title  *string `json:"title"`
	Pinned *bool   `json:"pinned"`
	Public *bool   `json:"public"`
}

// UpdateConversation renames, pins or publishes a conversation. A
// rename sets the title source to "user" so auto-generation never
// overwrites it.
func (s *APIV1Service) UpdateConversation(c echo.Context) error {
	conversation, err := s.findOwnConversation(c)
	if err != nil {
		return err
	}

	req := &updateConversationRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}

	now := time.Now().Unix()
	update := &store.UpdateConversation{
		ID:        conversation.ID,
		Pinned:    req.Pinned,
		Public:    req.Public,
		UpdatedTs: &now,
	}
	if req.Title != nil {
		update.Title = req.Title
		titleSource := store.TitleSourceUser
		update.TitleSource = &titleSource
	}

	updated, err := s.Store.UpdateConversation(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update conversation").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toConversationPayload(updated))
}

// DeleteConversation removes a conversation and its messages.
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	conversation, err := s.findOwnConversation(c)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteConversation(c.Request().Context(), &store.DeleteConversation{
		ID: conversation.ID,
	}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
