package routes

import (
	"net/http"
	"slices"
	"time"

	"chatboard/middleware"
	"chatboard/pkg/broadcast"
	"chatboard/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	broadcastingRoutes "chatboard/routes/broadcasting"
	messageRoutes "chatboard/routes/messages"
	websocketRoutes "chatboard/routes/websocket"
)

// Deps is everything the route handlers need.
type Deps struct {
	Messages *services.MessageService
	Hub      *broadcast.Hub
	Tickets  *broadcast.Tickets
	Limiter  *middleware.RateLimiter
	Origins  []string
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"msg":         "chat board running",
			"subscribers": deps.Hub.SubscriberCount(""),
		})
	})

	websocketRoutes.Register(r, deps.Hub, deps.Tickets, deps.Origins)
	broadcastingRoutes.Register(r, deps.Tickets)

	api := r.Group("/api")
	messageRoutes.Register(api, deps.Messages, deps.Limiter)
}

// NewRouter builds the engine with the shared middleware stack and all
// routes registered.
func NewRouter(trustedProxies []string, deps Deps) (*gin.Engine, error) {
	r := gin.Default()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}

	r.Use(middleware.RequestID())
	corsCfg := cors.Config{
		AllowOrigins:     deps.Origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(deps.Origins, "*") {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	RegisterRoutes(r, deps)
	return r, nil
}
