package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// SignalContext creates a logger context for signal evaluation
func SignalContext(symbol, side string, entry float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"entry":  entry,
	}).WithComponent("signal")
}

// IntentContext creates a logger context for intent dispatch
func IntentContext(intentID, symbol, side string, quantity float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"intent_id": intentID,
		"symbol":    symbol,
		"side":      side,
		"quantity":  quantity,
	}).WithComponent("dispatch")
}

// GateContext creates a logger context for gate evaluation
func GateContext(symbol string, hardPass bool, softScore float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"hard_pass":  hardPass,
		"soft_score": softScore,
	}).WithComponent("gates")
}

// VenueContext creates a logger context for venue API calls
func VenueContext(endpoint string, latencyMs int64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"endpoint":   endpoint,
		"latency_ms": latencyMs,
	}).WithComponent("venue")
}
