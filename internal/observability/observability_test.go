package observability

import (
	"context"
	"testing"

	"studyprogress/internal/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetupObservability_NoneEnabled(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		ServiceName: "test-service",
		Protocol:    "grpc",
		Endpoint:    "localhost:4317",
		Insecure:    true,
	}
	tp, mp, logger, err := SetupObservability(cfg, "test-service")
	require.NoError(t, err)
	require.Nil(t, tp)
	require.Nil(t, mp)
	require.NotNil(t, logger)
	require.NoError(t, Shutdown(context.Background(), tp, mp))
}

func TestInitTracing_Protocols(t *testing.T) {
	for _, protocol := range []string{"grpc", "http"} {
		t.Run(protocol, func(t *testing.T) {
			cfg := &config.OpenTelemetryConfig{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
				Protocol:       protocol,
				Endpoint:       "localhost:4317",
				Insecure:       true,
				SamplingRate:   1.0,
			}
			tp, err := InitTracing(cfg)
			require.NoError(t, err)
			require.NotNil(t, tp)
			require.NoError(t, tp.Shutdown(context.Background()))
		})
	}
}

func TestInitTracing_InvalidProtocol(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{Protocol: "carrier-pigeon", SamplingRate: 1.0}
	tp, err := InitTracing(cfg)
	require.Error(t, err)
	require.Nil(t, tp)
	require.Contains(t, err.Error(), "unsupported otel protocol")
}

func TestInitMetrics_InvalidProtocol(t *testing.T) {
	_, err := InitMetrics(&config.OpenTelemetryConfig{Protocol: "carrier-pigeon"})
	require.Error(t, err)
}

func TestTraceFunction_SpanName(t *testing.T) {
	recorder := setupRecorder(t)
	globalTracer = nil

	_, span := TraceGoalFunction(context.Background(), "ApplyBulkAction", AttributeUserID(1), AttributeAction("extend"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "goal.ApplyBulkAction", spans[0].Name())
	require.Contains(t, spans[0].Attributes(), attribute.String("goal.bulk_action", "extend"))
	globalTracer = nil
}

func TestNewEngineMetrics(t *testing.T) {
	m, err := NewEngineMetrics(nil)
	require.NoError(t, err)
	Add(context.Background(), m.SessionsStarted, 1)
	Add(context.Background(), nil, 1)
}
