package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-music-backend/internal/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func tracingConfig(enabled bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     enabled,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "music-backend-test",
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_DisabledIsNoOp(t *testing.T) {
	restoreGlobals(t)

	prevTP := otel.GetTracerProvider()
	shutdown, err := SetupOTel(context.Background(), tracingConfig(false), "v0")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatal("disabled setup must not touch the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := SetupOTel(context.Background(), tracingConfig(true), "v1.2.3")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global provider type = %T", otel.GetTracerProvider())
	}

	// The composite propagator must round-trip trace context.
	carrier := propagation.MapCarrier{}
	ctx, span := otel.Tracer("t").Start(context.Background(), "op")
	span.End()
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatal("traceparent not injected")
	}
}

func TestSetupOTel_TLSBranch(t *testing.T) {
	restoreGlobals(t)

	cfg := tracingConfig(true)
	cfg.Insecure = false
	shutdown, err := SetupOTel(context.Background(), cfg, "v1")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("tls").Start(context.Background(), "child")
	span.End()
}

func TestSetupOTel_FailuresLeaveGlobalsUntouched(t *testing.T) {
	cases := []struct {
		name     string
		sabotage func()
	}{
		{
			name: "exporter",
			sabotage: func() {
				newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errors.New("exporter down")
				}
			},
		},
		{
			name: "resource",
			sabotage: func() {
				newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
					return nil, errors.New("resource down")
				}
			},
		},
	}

	origExp, origRes := newOTLPExporterFn, newServiceResourceFn
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			restoreGlobals(t)
			t.Cleanup(func() {
				newOTLPExporterFn, newServiceResourceFn = origExp, origRes
			})
			tc.sabotage()

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()
			if _, err := SetupOTel(context.Background(), tracingConfig(true), "v0"); err == nil {
				t.Fatal("want error")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatal("globals changed on failed setup")
			}
		})
	}
}

func TestSetupOTel_ShutdownWithinDeadline(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := SetupOTel(context.Background(), tracingConfig(true), "v1")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
