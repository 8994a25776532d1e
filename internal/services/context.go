package services

import "context"

type contextKey string

const (
	workerIDKey contextKey = "worker_id"
	itemIDKey   contextKey = "item_id"
)

// WithWorkerID annotates context with the acting worker identifier.
func WithWorkerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerIDFromContext extracts the acting worker identifier if present.
func WorkerIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(workerIDKey)
	if val, ok := v.(int64); ok {
		return val, true
	}
	return 0, false
}

// WithItemID annotates context with the item identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the item identifier if present.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(itemIDKey)
	if val, ok := v.(int64); ok {
		return val, true
	}
	return 0, false
}
