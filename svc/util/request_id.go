package util

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the id stored by SetRequestID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDFrom reuses a caller supplied id only when it is a well formed
// UUID, so arbitrary header content never reaches the logs.
func RequestIDFrom(header string) string {
	if header != "" {
		if u, err := uuid.Parse(header); err == nil {
			return u.String()
		}
	}
	return uuid.NewString()
}
