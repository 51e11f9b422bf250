package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts socket.io and the connection stats endpoint.
func RegisterRoutes(rg *gin.RouterGroup, hub *Hub, authMW gin.HandlerFunc) {
	handler := gin.WrapH(hub.Handler())
	rg.Any("/socket.io", handler)
	rg.Any("/socket.io/*any", handler)

	rg.GET("/gateway/stats", authMW, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"devices": hub.ClientCount(RoomOwner),
			"widgets": hub.ClientCount(RoomPublic),
			"total":   hub.ClientCount(""),
		})
	})
}
