package errors

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a type for context keys
type contextKey string

const (
	sessionIDKey contextKey = "session_id"
)

// GenerateSessionID generates a new unique session ID
func GenerateSessionID() string {
	return uuid.New().String()
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// EnsureSessionID returns a context carrying a session ID, reusing any
// existing one so log correlation stays stable for the process lifetime.
func EnsureSessionID(ctx context.Context) context.Context {
	if GetSessionID(ctx) != "" {
		return ctx
	}
	return WithSessionID(ctx, GenerateSessionID())
}

// SessionIDOrGenerate returns the session ID from context or generates a new one
func SessionIDOrGenerate(ctx context.Context) string {
	if sessionID := GetSessionID(ctx); sessionID != "" {
		return sessionID
	}
	return GenerateSessionID()
}
