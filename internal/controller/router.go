package controller

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"arena/pkg/errors"
	"arena/pkg/utils/response"
)

const adminTokenHeader = "X-Admin-Token"

// AdminRequired rejects organizer endpoints unless the caller presents the
// configured token. An empty configured token disables the check, which is
// only acceptable behind a trusted gateway.
func AdminRequired(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.ErrorWithCode(c, errors.Unauthorized, "admin token required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RegisterRoutes wires all contest endpoints under /api/v1.
func RegisterRoutes(router *gin.Engine, contests *ContestController, ws *WSController, adminToken string) {
	api := router.Group("/api/v1")

	api.POST("/practice/run", contests.PracticeRun)

	api.POST("/contests/:id/join", contests.Join)
	api.POST("/contests/:id/submit", contests.Submit)
	api.POST("/contests/:id/finish_early", contests.FinishEarly)
	api.GET("/contests/:id/state", contests.State)
	api.GET("/contests/:id/ws", ws.Subscribe)

	admin := api.Group("", AdminRequired(adminToken))
	admin.POST("/contests", contests.Create)
	admin.POST("/contests/:id/start", contests.Start)
	admin.POST("/contests/:id/finish", contests.Finish)
	admin.POST("/contests/:id/disqualify/:participant_id", contests.Disqualify)
	admin.GET("/contests/:id/whitelist", contests.WhitelistList)
	admin.POST("/contests/:id/whitelist", contests.WhitelistAdd)
	admin.DELETE("/contests/:id/whitelist/:nickname", contests.WhitelistRemove)
}
