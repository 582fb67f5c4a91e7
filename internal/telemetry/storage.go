// Package telemetry holds the span and metric plumbing shared by the storage backends.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/storage"
)

// Storage operation results used as metric labels
const (
	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultExists   = "exists"
	ResultError    = "error"
)

// StorageRecorder records spans and metrics for one storage backend.
// The zero value and a nil *StorageRecorder are valid and record nothing.
type StorageRecorder struct {
	inst        *instrumentation.Instrumentation
	tracer      trace.Tracer
	storageType string
}

// NewStorageRecorder returns a recorder for the given backend type ("memory", "redis", "sqlite")
func NewStorageRecorder(inst *instrumentation.Instrumentation, storageType string) *StorageRecorder {
	r := &StorageRecorder{inst: inst, storageType: storageType}
	if inst != nil {
		r.tracer = inst.Tracer("storage")
	}
	return r
}

// Start starts a new span for a storage operation
func (r *StorageRecorder) Start(ctx context.Context, operation string) (context.Context, trace.Span) {
	if r == nil || r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, r.storageType),
		))
	return ctx, span
}

// Done ends span and records the operation count and duration.
// Not-found and duplicate results are expected outcomes and leave the span status Ok.
func (r *StorageRecorder) Done(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	defer span.End()

	if r == nil || r.inst == nil {
		return
	}

	result := Result(err)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageResult, result))
	if result == ResultError {
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	r.inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

// Result classifies a storage error into a metric label
func Result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, storage.ErrGrantNotFound), errors.Is(err, storage.ErrClientNotFound):
		return ResultNotFound
	case errors.Is(err, storage.ErrGrantExists):
		return ResultExists
	default:
		return ResultError
	}
}
