package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
)

// Recovery turns a handler panic into a server_error envelope.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("handler panic",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		fe := failure.Classify(fmt.Errorf("panic: %v", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, fe.Envelope())
	})
}
