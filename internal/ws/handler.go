package ws

import (
	"net/http"
	"os"

	"mining_webapp/internal/logger"
	"mining_webapp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HandleFeed upgrades the connection and streams the user's live session
// state. The session's tick loop starts with the first connection and stops
// after the last one closes, so no loop outlives its user context.
func HandleFeed(hub *Hub, svc *service.MiningService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		userID, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if _, err := svc.StartSession(c.Request.Context(), userID); err != nil {
			logger.Error("start session for ws feed", "user_id", userID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
			return
		}

		allowedOrigin := os.Getenv("ALLOWED_ORIGIN")
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}

		client := NewClient(userID, conn)
		hub.Register(client)
		go func() {
			client.Run()
			if hub.Unregister(client) == 0 {
				svc.StopSession(userID)
			}
		}()
	}
}
