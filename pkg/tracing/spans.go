package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// JobSpanAttributes identifies a background job run
func JobSpanAttributes(job string, orderID int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("transfer.job", job),
		attribute.Int64("transfer.order_id", orderID),
	}
}

func MessagingSpanAttributes(system, destination, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.MessagingSystemKey.String(system),
		semconv.MessagingDestinationName(destination),
		semconv.MessagingOperationKey.String(operation),
	}
}

// WithSpan runs fn inside a span named name and records its error
func WithSpan(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// HeaderCarrier collects propagation fields for message headers
type HeaderCarrier map[string]string

func (c HeaderCarrier) Get(key string) string { return c[key] }

func (c HeaderCarrier) Set(key, value string) { c[key] = value }

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject writes the active span context of ctx into carrier
func Inject(ctx context.Context, carrier HeaderCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}
