package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRunID    contextKey = "run_id"
	keyProvider contextKey = "provider"
)

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithProvider adds the upstream provider name to context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, keyProvider, provider)
}

// Provider extracts the upstream provider name from context.
func Provider(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyProvider).(string)
	return v, ok && v != ""
}
