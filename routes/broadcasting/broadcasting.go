package broadcasting

import (
	"chatboard/controllers"
	"chatboard/pkg/broadcast"

	"github.com/gin-gonic/gin"
)

func Register(r *gin.Engine, tickets *broadcast.Tickets) {
	r.POST("/broadcasting/auth", controllers.BroadcastingAuth(tickets))
}
