package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestTelemetry surfaces the active trace id to callers and tags the
// request span with the authenticated wallet once auth has run. otelgin
// owns span creation; this only enriches it.
func RequestTelemetry() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.SpanContext().HasTraceID() {
			c.Header("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		c.Next()

		if wallet, ok := WalletFromContext(c); ok {
			span.SetAttributes(attribute.String("wallet.address", wallet))
		}
	}
}

// RequestLogger logs one line per request with method, path, status, and
// latency. Health and metrics probes stay out of the logs.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	skip := map[string]struct{}{
		"/health":  {},
		"/live":    {},
		"/ready":   {},
		"/metrics": {},
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}

		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Info("Request completed")
	}
}
