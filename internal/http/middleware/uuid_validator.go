package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUIDParam разбирает параметр пути как UUID и кладёт его в контекст под тем же именем.
func UUIDParam(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param(name))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + name + " должен быть валидным UUID",
			})
			return
		}
		c.Set(name, id)
		c.Next()
	}
}

// ParamUUID возвращает значение, сохранённое UUIDParam.
func ParamUUID(c *gin.Context, name string) uuid.UUID {
	if v, ok := c.Get(name); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
