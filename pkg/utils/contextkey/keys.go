package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const runID key = "run_id"

// WithRunID returns a context carrying the sandbox run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runID, id)
}

// RunID extracts the sandbox run identifier, if any.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runID).(string)
	return id, ok
}
