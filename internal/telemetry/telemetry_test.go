package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_DisabledUsesNoopProviders(t *testing.T) {
	ctx := context.Background()

	provider, err := Init(ctx, Config{
		ServiceName:  "cityscope-test",
		Environment:  "test",
		OTLPEndpoint: "collector.invalid:4317",
	})
	require.NoError(t, err)

	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_ShutdownEmpty(t *testing.T) {
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}

func TestConfig_Sampler(t *testing.T) {
	always := sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()

	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"unset keeps all", 0, always},
		{"one keeps all", 1, always},
		{"above one keeps all", 3, always},
		{"ratio", 0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Config{SampleRatio: tt.ratio}.sampler().Description())
		})
	}
}

func TestConfig_MetricInterval(t *testing.T) {
	assert.Equal(t, defaultMetricInterval, Config{}.metricInterval())
	assert.Equal(t, time.Minute, Config{MetricInterval: time.Minute}.metricInterval())
}

func TestErrorHandler_LogsToZerolog(t *testing.T) {
	var buf bytes.Buffer
	handler := ErrorHandler(zerolog.New(&buf))

	handler.Handle(errors.New("exporter unreachable"))

	assert.Contains(t, buf.String(), "exporter unreachable")
	assert.Contains(t, buf.String(), `"component":"otel"`)
}
