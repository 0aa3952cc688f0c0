package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeadAndOptions answers HEAD with 200 and OPTIONS with 204 on any path.
// It runs after CORS, so preflights carrying an Origin never reach it.
func HeadAndOptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodHead:
			c.AbortWithStatus(http.StatusOK)
		case http.MethodOptions:
			c.AbortWithStatus(http.StatusNoContent)
		default:
			c.Next()
		}
	}
}
