package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/udhos/tokenproxy/downstream"
	"github.com/udhos/tokenproxy/metrics"
	"github.com/udhos/tokenproxy/ratelimit"
)

const (
	contextKeyCorrelationID = "correlation_id"
	contextKeyLogEntry      = "log_entry"
)

// Recovery returns a middleware that turns a panic into a 500 response.
func Recovery(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"method":                c.Request.Method,
					"path":                  c.Request.URL.Path,
					contextKeyCorrelationID: c.GetString(contextKeyCorrelationID),
				}).Errorf("panic: %v", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CorrelationID returns a middleware that reuses the inbound X-Correlation-ID
// or generates one, echoes it on the response, and stores it in the request
// context for downstream propagation.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(downstream.CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyCorrelationID, id)
		c.Header(downstream.CorrelationHeader, id)
		c.Request = c.Request.WithContext(downstream.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestLogger returns a middleware that logs one line per request and
// exposes a request-scoped entry to handlers.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()

		entry := logger.WithField(contextKeyCorrelationID, c.GetString(contextKeyCorrelationID))
		c.Set(contextKeyLogEntry, entry)

		c.Next()

		entry.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(begin).String(),
			"client":  c.ClientIP(),
		}).Info("request")
	}
}

// RateLimit returns a middleware that rejects requests over the limit per
// client address. Limiter errors let the request through.
func RateLimit(limiter ratelimit.Limiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logEntry(c).WithError(err).Warn("rate limiter failed, allowing request")
			c.Next()
			return
		}
		if !allowed {
			m.RecordRateLimitRejected()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// logEntry returns the request-scoped entry set by RequestLogger.
func logEntry(c *gin.Context) *logrus.Entry {
	if v, found := c.Get(contextKeyLogEntry); found {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.WithField(contextKeyCorrelationID, c.GetString(contextKeyCorrelationID))
}
