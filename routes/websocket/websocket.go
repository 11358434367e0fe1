package websocket

import (
	"chatboard/controllers"
	"chatboard/pkg/broadcast"

	"github.com/gin-gonic/gin"
)

func Register(r *gin.Engine, hub *broadcast.Hub, tickets *broadcast.Tickets, origins []string) {
	r.GET("/ws", controllers.ChatWS(hub, tickets, origins))
}
