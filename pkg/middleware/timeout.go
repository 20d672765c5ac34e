package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/logger"
)

// RequestTimeout bounds handler execution. A request that outlives the
// deadline is answered with a 504 envelope; the handler's own late write is
// discarded. Not for websocket routes, the wrapped writer cannot be hijacked.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return timeout.New(
		timeout.WithTimeout(d),
		timeout.WithHandler(func(c *gin.Context) {
			c.Next()
		}),
		timeout.WithResponse(func(c *gin.Context) {
			logger.WarnContext(c.Request.Context(), "request timed out",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Duration("timeout", d),
			)
			c.JSON(http.StatusGatewayTimeout, common.Response{
				Success: false,
				Error: &common.ErrorInfo{
					Code:      http.StatusGatewayTimeout,
					ErrorCode: common.CodeServiceUnavailable,
					Message:   "request took too long to process",
				},
			})
		}),
	)
}
