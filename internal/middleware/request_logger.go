// request_logger.go
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "requestId"
	requestIDHeader = "X-Request-ID"
)

// RequestID reutiliza el X-Request-ID entrante o genera uno nuevo.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger escribe una línea por petición. Reemplaza al logger de
// gin.Default para que todo salga por slog.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.ClientIP(),
			"requestId", RequestIDFrom(c),
		}
		if p := CurrentPrincipal(c); p != nil {
			attrs = append(attrs, "userId", p.ID)
		}

		switch {
		case status >= 500:
			log.Error("petición HTTP", attrs...)
		case status >= 400:
			log.Warn("petición HTTP", attrs...)
		default:
			log.Info("petición HTTP", attrs...)
		}
	}
}
