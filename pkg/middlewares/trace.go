package middleware

import (
	"github.com/freshbasket/fulfillment-core/pkg"
	"github.com/freshbasket/fulfillment-core/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceID returns Gin middleware to handle trace IDs for observability.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.Request.Header.Get(pkg.HeaderTraceId)
		if utils.IsEmpty(traceID) {
			traceID = uuid.New().String()
		}
		// Set in context for handlers/services (logging, Kafka publish)
		c.Set(pkg.TraceId, traceID)
		// Propagate in the response header for clients/downstream tracing
		c.Writer.Header().Set(pkg.HeaderTraceId, traceID)
		c.Next()
	}
}
