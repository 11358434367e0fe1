package messages

import (
	"chatboard/controllers"
	"chatboard/middleware"
	"chatboard/pkg/services"

	"github.com/gin-gonic/gin"
)

// Register mounts the message resource. Writes are rate limited per IP.
func Register(g *gin.RouterGroup, svc *services.MessageService, limiter *middleware.RateLimiter) {
	write := []gin.HandlerFunc{}
	if limiter != nil {
		write = append(write, limiter.Middleware())
	}

	g.GET("/messages", controllers.ListMessages(svc))
	g.POST("/messages", append(write, controllers.CreateMessage(svc))...)
	g.GET("/messages/:id", controllers.GetMessage(svc))
	g.PUT("/messages/:id", append(write, controllers.UpdateMessage(svc))...)
	g.DELETE("/messages/:id", controllers.DeleteMessage(svc))
}
