package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"valencia-data-detective/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// LiveChannel is the Redis pub/sub channel the capture daemon
// publishes fresh traffic measurements on.
const LiveChannel = "valencia:live:traffic"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveWebSocket streams capture-time traffic updates to authenticated
// clients. Browsers cannot set headers on websocket dials, so the JWT
// arrives as a query parameter.
func LiveWebSocket(cache *services.CacheService, authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token query parameter"})
			return
		}

		if _, err := authService.ValidateToken(tokenStr); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		if !cache.Available() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pubsub := cache.Subscribe(ctx, LiveChannel)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				// The payload is already JSON; RawMessage keeps it
				// from being re-encoded as a string.
				err := conn.WriteJSON(gin.H{
					"type": "traffic_update",
					"data": json.RawMessage(msg.Payload),
				})
				if err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			}
		}
	}
}
