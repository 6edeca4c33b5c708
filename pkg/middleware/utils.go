package middleware

import (
	"github.com/gin-gonic/gin"

	"pulse/pkg/ctxkeys"
	"pulse/pkg/logging"
)

// SetupCommonMiddleware adds all common middleware to a router
func SetupCommonMiddleware(r *gin.Engine, logger logging.Logger) {
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware())
}

// GetRequestID gets the request ID from the context
func GetRequestID(c *gin.Context) string {
	if id := c.GetString(string(ctxkeys.KeyRequestID)); id != "" {
		return id
	}
	return ctxkeys.GetRequestID(c.Request.Context())
}

// GetContextLogger gets a logger with request context
func GetContextLogger(c *gin.Context, logger logging.Logger) logging.Entry {
	return logger.WithFields(logging.Fields{
		"request_id": GetRequestID(c),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"client_ip":  c.ClientIP(),
		"tenant_id":  c.GetString(string(ctxkeys.KeyTenantID)),
		"user_id":    c.GetString(string(ctxkeys.KeyUserID)),
	})
}
