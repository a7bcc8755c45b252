// Package v1 exposes the JSON HTTP API.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/driftchat/driftchat/ai/metrics"
	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/server/router/api/v1/ai"
	"github.com/driftchat/driftchat/store"
)

// APIV1Service wires the v1 route handlers.
type APIV1Service struct {
	Profile      *profile.Profile
	Store        *store.Store
	Orchestrator *ai.Orchestrator
}

// NewAPIV1Service creates the v1 service.
func NewAPIV1Service(prof *profile.Profile, st *store.Store, exporter *metrics.Exporter) *APIV1Service {
	return &APIV1Service{
		Profile:      prof,
		Store:        st,
		Orchestrator: ai.NewOrchestrator(st, prof, exporter),
	}
}

// RegisterRoutes mounts every v1 route behind the access-token
// middleware.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1", auth.Middleware(s.Profile.Secret))

	g.POST("/generate-message", s.GenerateMessage)
	g.POST("/cancel-generation", s.CancelGeneration)

	g.GET("/conversations", s.ListConversations)
	g.GET("/conversations/:uid", s.GetConversation)
	g.GET("/conversations/:uid/messages", s.ListConversationMessages)
	g.PATCH("/conversations/:uid", s.UpdateConversation)
	g.DELETE("/conversations/:uid", s.DeleteConversation)

	g.GET("/models", s.ListEnabledModels)
	g.POST("/models", s.EnableModel)
	g.DELETE("/models/:id", s.DisableModel)

	g.GET("/rules", s.ListRules)
	g.POST("/rules", s.CreateRule)
	g.PATCH("/rules/:uid", s.UpdateRule)
	g.DELETE("/rules/:uid", s.DeleteRule)

	g.GET("/settings", s.GetSetting)
	g.PATCH("/settings", s.UpdateSetting)
	g.GET("/credentials", s.ListCredentials)
	g.PUT("/credentials/:provider", s.UpsertCredential)
	g.DELETE("/credentials/:provider", s.DeleteCredential)
}
