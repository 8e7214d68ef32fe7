package notify

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/katinat-coffee/ordering-backend/internal/auth"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin from the storefront; origin
	// policy is enforced by the token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS authenticates the handshake and hands the connection to the hub.
// The credential rides in the `token` query parameter (browsers cannot set
// headers on websocket dials) with an Authorization header fallback.
// Unauthenticated attempts are rejected before any topic is joined.
func ServeWS(hub *Hub, verifier *auth.Verifier, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	wsLog := log.WithComponent("notify_ws")

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
				token = strings.TrimSpace(h[len("bearer "):])
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		ident, err := verifier.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			wsLog.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := newClient(hub, conn, ident)

		// Memberships are re-derived on every connect, never resumed.
		hub.Subscribe(client, UserTopic(ident.UserID))
		if ident.Role == auth.RoleAdmin {
			hub.Subscribe(client, TopicAdmin)
		}
		if ident.Role == auth.RoleStaff {
			storeID := c.Query("storeId")
			if storeID == "" {
				storeID = ident.StoreID
			}
			if storeID != "" {
				hub.Subscribe(client, StoreTopic(storeID))
			}
		}

		wsLog.Info("client connected", "user_id", ident.UserID, "role", string(ident.Role))

		go client.writePump()
		go client.readPump()
	}
}
