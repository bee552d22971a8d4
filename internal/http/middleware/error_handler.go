package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// ErrorHandler превращает c.Error(err) в JSON-ответ. Сообщения AppError
// показываются как есть, остальные ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	log := logger.WithComponent("http")

	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := http.StatusInternalServerError
		message := "внутренняя ошибка сервера"

		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
			status = appErr.HTTPStatus
			message = appErr.Message
		}

		entry := log.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": status,
		}).WithError(err)
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Debug("request rejected")
		}

		c.JSON(status, gin.H{"error": message})
	}
}
