// Package httpapi is the HTTP/SSE surface over the runner facade: session
// CRUD-ish endpoints, the live event stream, historical replay, file
// download, and auth token issuance.
//
// Grounded on the teacher's internal/orchestrator/api package (gin
// route-group registration, a Handler struct wrapping a service and a
// logger, errors rendered via apperr's HTTPStatus/code) and
// telnet2-opencode's internal/server/sse.go for the streaming endpoint.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/extractumio/agentum/internal/authsvc"
	"github.com/extractumio/agentum/internal/common/logger"
	"github.com/extractumio/agentum/internal/runner"
)

// Handler holds the dependencies every route needs.
type Handler struct {
	facade *runner.Facade
	auth   *authsvc.Service
	log    *logger.Logger
}

// NewHandler constructs a Handler bound to facade and auth.
func NewHandler(facade *runner.Facade, auth *authsvc.Service, log *logger.Logger) *Handler {
	return &Handler{
		facade: facade,
		auth:   auth,
		log:    log.WithFields(zap.String("component", "httpapi")),
	}
}

// RegisterRoutes wires every endpoint spec.md §4.12 names onto router,
// under the supplied API prefix group (e.g. router.Group("/api/v1")).
func RegisterRoutes(group *gin.RouterGroup, h *Handler) {
	group.POST("/auth/token", h.IssueToken)

	sessions := group.Group("/sessions")
	sessions.Use(h.RequireAuth())
	{
		sessions.GET("", h.ListSessions)
		sessions.POST("/run", h.RunSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/task", h.ContinueSession)
		sessions.POST("/:id/cancel", h.CancelSession)
		sessions.GET("/:id/result", h.GetResult)
		sessions.GET("/:id/events", h.StreamEvents)
		sessions.GET("/:id/events/history", h.EventHistory)
		sessions.GET("/:id/files", h.GetFile)
	}
}

// RegisterHealth wires the unauthenticated liveness/readiness endpoints.
func RegisterHealth(router gin.IRouter, h *Handler) {
	router.GET("/healthz", h.Healthz)
	router.GET("/readyz", h.Readyz)
}
