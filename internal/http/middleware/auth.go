package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// ContextUserKey ключ gin.Context, под которым лежит *models.User.
const ContextUserKey = "user"

// Authenticator проверяет access токен и возвращает актуального пользователя.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware проверяет Bearer токен и кладёт пользователя в контекст.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if apperror.CodeOf(err) != apperror.ErrCodeUnauthorized {
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperror.MessageOf(err, "токен невалиден")})
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// AdminOnly пропускает только администраторов. Ставится после AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || user.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "доступ только для администраторов"})
			return
		}
		c.Next()
	}
}

// CurrentUser достаёт пользователя, положенного AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	raw, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := raw.(*models.User)
	return user, ok && user != nil
}
