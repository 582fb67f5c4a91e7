package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/storage"
)

func TestResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ResultSuccess},
		{"grant not found", storage.ErrGrantNotFound, ResultNotFound},
		{"wrapped client not found", fmt.Errorf("lookup: %w", storage.ErrClientNotFound), ResultNotFound},
		{"grant exists", storage.ErrGrantExists, ResultExists},
		{"other", errors.New("connection refused"), ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Result(tt.err); got != tt.want {
				t.Errorf("Result() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStorageRecorder_Nil(t *testing.T) {
	var r *StorageRecorder
	ctx, span := r.Start(context.Background(), "consume_grant")
	r.Done(ctx, span, "consume_grant", nil, time.Now())
}

func TestStorageRecorder_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := instrumentation.New(instrumentation.Config{
		Enabled:        true,
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r := NewStorageRecorder(inst, "memory")

	ctx, span := r.Start(context.Background(), "consume_grant")
	r.Done(ctx, span, "consume_grant", storage.ErrGrantNotFound, time.Now())

	ctx, span = r.Start(context.Background(), "create_grant")
	r.Done(ctx, span, "create_grant", errors.New("disk full"), time.Now())

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(ended))
	}
	if ended[0].Name() != "storage.consume_grant" {
		t.Errorf("span name = %q, want %q", ended[0].Name(), "storage.consume_grant")
	}
	if ended[0].Status().Code != codes.Ok {
		t.Errorf("not found status = %v, want Ok", ended[0].Status().Code)
	}
	if ended[1].Status().Code != codes.Error {
		t.Errorf("failure status = %v, want Error", ended[1].Status().Code)
	}
}
