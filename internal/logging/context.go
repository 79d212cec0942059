package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const traceHeader = "X-Trace-ID"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context, falling back to the given default
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// TradeContext creates a logger for trade executions
func TradeContext(base zerolog.Logger, symbol, side string, quantity, price float64) zerolog.Logger {
	return base.With().
		Str("component", "trade").
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", quantity).
		Float64("price", price).
		Logger()
}

// PositionContext creates a logger for position lifecycle events
func PositionContext(base zerolog.Logger, symbol, positionID string, entryPrice, amount float64) zerolog.Logger {
	return base.With().
		Str("component", "position").
		Str("symbol", symbol).
		Str("position_id", positionID).
		Float64("entry_price", entryPrice).
		Float64("amount", amount).
		Logger()
}

// WebSocketContext creates a logger for stream connections
func WebSocketContext(base zerolog.Logger, symbol, stream string) zerolog.Logger {
	return base.With().
		Str("component", "websocket").
		Str("symbol", symbol).
		Str("stream", stream).
		Logger()
}

// DatabaseContext creates a logger for database operations
func DatabaseContext(base zerolog.Logger, operation, table string) zerolog.Logger {
	return base.With().
		Str("component", "database").
		Str("operation", operation).
		Str("table", table).
		Logger()
}

// GinMiddleware logs every request with a trace id and stores the request
// logger in the request context.
func GinMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}
		c.Header(traceHeader, traceID)

		l := base.With().
			Str("component", "http").
			Str("trace_id", traceID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), l))

		c.Next()

		status := c.Writer.Status()
		evt := l.Info()
		if status >= 500 {
			evt = l.Error()
		} else if status >= 400 {
			evt = l.Warn()
		}
		evt.Int("status_code", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}
