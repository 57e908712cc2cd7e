package core

import "context"

// requestIDKey is unexported so only this package can build the context key.
type requestIDKey struct{}

// WithRequestID returns a context carrying a caller-chosen request ID. The
// transport forwards it to the server as X-Client-Request-Id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the request ID attached to ctx, or "" when unset.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
