// Package context carries per-request identity values through
// context.Context so handlers, services and background goroutines share the
// same tenant scoping.
package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	tenantIDKey
	userIDKey
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	return stringValue(ctx, tenantIDKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}
