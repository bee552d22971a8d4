package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/studytips-bot/internal/http/middleware"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/ws"
)

// WSHandler подключает администраторов к ленте событий.
type WSHandler struct {
	hub      *ws.Hub
	auth     middleware.Authenticator
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, auth middleware.Authenticator, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// Handle обслуживает GET /api/ws?token=...
// Браузер не умеет ставить заголовок Authorization при апгрейде, поэтому токен в query.
func (h *WSHandler) Handle(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access токен обязателен"})
		return
	}

	user, err := h.auth.Authenticate(c.Request.Context(), raw)
	if err != nil {
		if apperror.CodeOf(err) != apperror.ErrCodeUnauthorized {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "невалидный access токен"})
		return
	}
	if user.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "доступ только для администраторов"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту.
		return
	}

	ws.NewClient(conn, h.hub, user.ID).Run(c.Request.Context())
}
