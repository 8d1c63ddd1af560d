package log

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKeyHijacked is the key used to mark a connection as hijacked in Gin's context.
// WebSocket handlers should call MarkHijacked(c) before upgrading the connection.
const ContextKeyHijacked = "connection_hijacked"

// MarkHijacked marks the connection as hijacked in Gin's context so the
// request-logging middleware doesn't touch c.Writer after the upgrade.
func MarkHijacked(c *gin.Context) {
	c.Set(ContextKeyHijacked, true)
}

// IsHijacked checks if the connection has been marked as hijacked.
func IsHijacked(c *gin.Context) bool {
	hijacked, exists := c.Get(ContextKeyHijacked)
	return exists && hijacked.(bool)
}

// GinLogger returns a Gin middleware that logs requests using zerolog
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		// Hijacked connections (WebSocket upgrades) must not be written to;
		// even reading c.Writer.Status() triggers WriteHeaderNow.
		if IsHijacked(c) {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method
		clientIP := c.ClientIP()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if raw != "" {
			path = path + "?" + raw
		}

		event := Info()
		if status >= 500 {
			event = Error()
		} else if status >= 400 {
			event = Warn()
		}

		event.
			Str("method", method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", clientIP)

		if errorMessage != "" {
			event.Str("error", errorMessage)
		}

		event.Msg("request")
	}
}
