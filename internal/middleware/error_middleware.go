package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"classline/internal/transport/httpdto"
	"classline/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler logs every error a handler attached to the context. The
// raw text stays in the log only: if no handler has written a response
// yet, the client gets a generic failure envelope.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		if log != nil {
			log.ErrorCtx(c.Request.Context(), "request error", zap.Error(err))
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error"))
	}
}
