package observability

import (
	"context"

	"studyprogress/internal/config"
	contextutils "studyprogress/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Meter returns the engine's meter from the global provider.
func Meter() otelmetric.Meter {
	return otel.Meter(instrumentationName)
}

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *sdkmetric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otel resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch cfg.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp grpc metric exporter: %w", err)
		}
	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp http metric exporter: %w", err)
		}
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "unsupported otel protocol: %s", cfg.Protocol)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

// EngineMetrics holds the counters shared by the engine services.
type EngineMetrics struct {
	SessionsStarted   otelmetric.Int64Counter
	SessionsEnded     otelmetric.Int64Counter
	QuizzesCompleted  otelmetric.Int64Counter
	DifficultyChanges otelmetric.Int64Counter
	BulkActionFailed  otelmetric.Int64Counter
}

// NewEngineMetrics registers the engine counters on the given meter.
// A nil meter falls back to Meter().
func NewEngineMetrics(meter otelmetric.Meter) (*EngineMetrics, error) {
	if meter == nil {
		meter = Meter()
	}
	m := &EngineMetrics{}
	var err error
	if m.SessionsStarted, err = meter.Int64Counter("session.started", otelmetric.WithDescription("Study sessions started")); err != nil {
		return nil, err
	}
	if m.SessionsEnded, err = meter.Int64Counter("session.ended", otelmetric.WithDescription("Study sessions ended")); err != nil {
		return nil, err
	}
	if m.QuizzesCompleted, err = meter.Int64Counter("quiz.completed", otelmetric.WithDescription("Quizzes finalized")); err != nil {
		return nil, err
	}
	if m.DifficultyChanges, err = meter.Int64Counter("difficulty.adjusted", otelmetric.WithDescription("Item difficulties written back")); err != nil {
		return nil, err
	}
	if m.BulkActionFailed, err = meter.Int64Counter("goal.bulk_action.failures", otelmetric.WithDescription("Goal ids that failed within a bulk action")); err != nil {
		return nil, err
	}
	return m, nil
}

// Add increments c when it is set.
func Add(ctx context.Context, c otelmetric.Int64Counter, n int64, opts ...otelmetric.AddOption) {
	if c == nil {
		return
	}
	c.Add(ctx, n, opts...)
}
