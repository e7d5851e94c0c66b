package tracing

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:   "disabled tracer",
			config: &Config{Enable: false},
		},
		{
			name: "jaeger exporter",
			config: &Config{
				Enable:      true,
				ServiceName: "test-utpd",
				Endpoint:    "http://localhost:14268/api/traces",
				Exporter:    "jaeger",
				SampleRate:  1.0,
			},
		},
		{
			name: "invalid exporter",
			config: &Config{
				Enable:      true,
				ServiceName: "test-utpd",
				Exporter:    "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracer.Shutdown(ctx)
			}()

			if tt.config.Enable != tracer.IsEnabled() {
				t.Errorf("IsEnabled() = %v, want %v", tracer.IsEnabled(), tt.config.Enable)
			}
		})
	}
}

func TestTracerOperationsDisabled(t *testing.T) {
	tracer, err := New(&Config{Enable: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()

	hctx, span := tracer.StartHandshake(ctx, "conn-1", "client")
	if hctx == nil || span == nil {
		t.Fatal("StartHandshake returned nil context or span")
	}
	span.End()

	cctx, cspan := tracer.StartClose(ctx, "conn-1")
	if cctx == nil || cspan == nil {
		t.Fatal("StartClose returned nil context or span")
	}
	cspan.End()

	tracer.AddEvent(ctx, "test-event", attribute.String("key", "value"))
	tracer.SetAttributes(ctx, attribute.String("attr", "value"))
	tracer.RecordError(ctx, nil)

	if id := tracer.TraceID(ctx); id != "" {
		t.Errorf("TraceID() = %q, want empty string for a disabled tracer", id)
	}
}
