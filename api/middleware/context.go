package middleware

import "context"

type contextKey string

const ctxRiderID contextKey = "rider_id"

// RiderIDFromContext returns the rider identifier the gateway attached to the
// request, empty when absent.
func RiderIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRiderID).(string); ok {
		return v
	}
	return ""
}

// WithRiderID injects the rider identifier into the context.
func WithRiderID(ctx context.Context, riderID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRiderID, riderID)
}
