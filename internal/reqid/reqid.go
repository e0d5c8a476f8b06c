// Package reqid carries a request correlation ID through context.
package reqid

import "context"

// key is unexported to avoid collisions with other context values.
type key struct{}

// With attaches the request ID to the context.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key{}, id)
}

// From returns the request ID stored in the context, if any.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(key{}).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
