package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
)

// StreamEvents handles GET /api/v1/ws - pushes job and offer notifications
// for the current user over a websocket
func StreamEvents(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		// the upgrader writes its own error response on failure
		if err := hub.ServeWS(c.Writer, c.Request, user.ID); err != nil {
			logger.Log.Info("Websocket upgrade failed", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}
}
