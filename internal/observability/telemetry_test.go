package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/colony-launcher/colony/internal/observability"
)

type markerPropagator struct{ propagation.TraceContext }

type markerErrorHandler struct{}

func (markerErrorHandler) Handle(error) {}

// installMarkers sets recognisable otel globals and restores the originals
// after the test.
func installMarkers(t *testing.T) *sdktrace.TracerProvider {
	t.Helper()

	prevTP := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	prevHandler := otel.GetErrorHandler()

	tp := sdktrace.NewTracerProvider()

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())

		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevPropagator)
		otel.SetErrorHandler(prevHandler)
	})

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(markerPropagator{})
	otel.SetErrorHandler(markerErrorHandler{})

	return tp
}

func assertMarkers(t *testing.T, tp *sdktrace.TracerProvider) {
	t.Helper()

	assert.Same(t, tp, otel.GetTracerProvider())
	assert.IsType(t, markerPropagator{}, otel.GetTextMapPropagator())
	assert.IsType(t, markerErrorHandler{}, otel.GetErrorHandler())
}

func TestSetupTelemetryDisabledLeavesGlobals(t *testing.T) {
	tp := installMarkers(t)

	for _, cfg := range []*observability.TelemetryConfig{nil, {Enabled: false, Endpoint: "localhost:4318"}} {
		shutdown, err := observability.SetupTelemetry(t.Context(), cfg)
		require.NoError(t, err)
		require.NoError(t, shutdown(t.Context()))

		assertMarkers(t, tp)
	}
}

func TestSetupTelemetryInstallsAndRestores(t *testing.T) {
	tp := installMarkers(t)

	shutdown, err := observability.SetupTelemetry(t.Context(), &observability.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Insecure:    true,
		SampleRatio: 0.5,
		Version:     "0.0.1",
		Commit:      "abc123",
	})
	require.NoError(t, err)

	assert.NotSame(t, tp, otel.GetTracerProvider())

	canceled, cancel := context.WithCancel(t.Context())
	cancel()

	_ = shutdown(canceled)

	assertMarkers(t, tp)
}

func TestStartSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := observability.StartSpan(t.Context(), "apiserver", "envelope ListDirectory")
	observability.EndSpan(span, errors.New("boom"))

	_, ok := observability.StartSpan(t.Context(), "apiserver", "envelope Terminate")
	observability.EndSpan(ok, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "envelope ListDirectory", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "colony/apiserver", ended[0].InstrumentationScope().Name)
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

func TestIsTelemetryEnabled(t *testing.T) {
	tests := []struct {
		otel, colony string
		want         bool
	}{
		{"", "", false},
		{"true", "", true},
		{" YES ", "", true},
		{"0", "", false},
		{"", "1", true},
		{"no", "random", false},
	}

	for _, tt := range tests {
		t.Setenv("OTEL_ENABLED", tt.otel)
		t.Setenv("COLONY_TELEMETRY", tt.colony)

		assert.Equal(t, tt.want, observability.IsTelemetryEnabled(), "OTEL_ENABLED=%q COLONY_TELEMETRY=%q", tt.otel, tt.colony)
	}
}
