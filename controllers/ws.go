package controllers

import (
	"log"
	"net/http"
	"slices"

	"chatboard/middleware"
	"chatboard/pkg/broadcast"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// ChatWS upgrades the request and hands the connection to the hub.
//
//	GET /ws?channel=chat[&channel=...][&token=ticket]
//
// Frames are broadcast.Envelope values; see that type for the protocol.
func ChatWS(hub *broadcast.Hub, tickets *broadcast.Tickets, origins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(origins),
	}
	return func(c *gin.Context) {
		if err := tickets.Verify(c.Query("token")); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid subscription ticket"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ws] upgrade error: %v", err)
			return
		}
		if _, err := hub.Attach(conn, middleware.ClientIP(c), c.QueryArray("channel")); err != nil {
			log.Printf("[ws] attach error: %v", err)
		}
	}
}

// BroadcastingAuth issues a subscription ticket when tickets are enabled.
func BroadcastingAuth(tickets *broadcast.Tickets) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tickets.Enabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		token, expires, err := tickets.Issue(middleware.ClientIP(c))
		if err != nil {
			log.Printf("[ws] ticket error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expires.UTC()})
	}
}
