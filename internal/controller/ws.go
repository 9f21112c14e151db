package controller

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arena/internal/realtime"
	"arena/internal/service"
	"arena/pkg/utils/logger"
	"arena/pkg/utils/response"
)

// WSController subscribes clients to a contest's live status feed.
type WSController struct {
	svc *service.ContestService
	hub *realtime.Hub
}

// NewWSController creates a websocket controller.
func NewWSController(svc *service.ContestService, hub *realtime.Hub) *WSController {
	return &WSController{svc: svc, hub: hub}
}

// Subscribe upgrades the connection and pushes the current snapshot so a
// client joining mid-contest sees the scoreboard before the next broadcast.
func (ctl *WSController) Subscribe(c *gin.Context) {
	contestID := c.Param("id")

	snapshot, err := ctl.svc.Snapshot(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	client, err := ctl.hub.ServeWS(c.Writer, c.Request, contestID)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed",
			zap.String("contest_id", contestID), zap.Error(err))
		return
	}
	ctl.hub.Send(c.Request.Context(), client, realtime.Event{
		Type:    realtime.EventFullStatusUpdate,
		Payload: snapshot,
	})
}
