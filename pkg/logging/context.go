package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey       contextKey = "trace_id"
	TransactionIDKey contextKey = "transaction_id"
	OrderIDKey       contextKey = "order_id"
	ServiceNameKey   contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithTransactionID(ctx context.Context, transactionID string) context.Context {
	return context.WithValue(ctx, TransactionIDKey, transactionID)
}

func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, OrderIDKey, orderID)
}

// WithSaga tags ctx with both saga identifiers.
func WithSaga(ctx context.Context, orderID, transactionID string) context.Context {
	return WithTransactionID(WithOrderID(ctx, orderID), transactionID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetTransactionID(ctx context.Context) string {
	return stringValue(ctx, TransactionIDKey)
}

func GetOrderID(ctx context.Context) string {
	return stringValue(ctx, OrderIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []contextKey{TraceIDKey, TransactionIDKey, OrderIDKey, ServiceNameKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}
