package middleware

import "context"

type (
	userIDKey    struct{}
	requestIDKey struct{}
)

// UserIDFromContext returns the caller resolved by Identity, or "".
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDKey{})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
