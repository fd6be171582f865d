package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/extractumio/agentum/internal/apperr"
)

const userIDContextKey = "agentum.user_id"

// RequireAuth validates the bearer token carried either in the
// Authorization header (preferred) or a ?token= query parameter (the
// only option for the browser EventSource API used against /events,
// which cannot set custom headers), and stores the resolved user id in
// the gin context for handlers to read via userID(c).
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerFromHeader(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			writeErr(c, apperr.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}

		userID, err := h.auth.ValidateToken(raw)
		if err != nil {
			writeErr(c, err)
			c.Abort()
			return
		}

		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func bearerFromHeader(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

func userID(c *gin.Context) string {
	v, _ := c.Get(userIDContextKey)
	s, _ := v.(string)
	return s
}

// writeErr renders err as the documented JSON error envelope with the
// matching HTTP status. An *apperr.AppError is rendered as-is; any other
// error is wrapped into one first.
func writeErr(c *gin.Context, err error) {
	appErr, ok := err.(*apperr.AppError)
	if !ok {
		appErr = apperr.Wrap(err, "request failed")
	}
	c.JSON(appErr.HTTPStatus, appErr)
}
