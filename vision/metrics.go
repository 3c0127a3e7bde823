package vision

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/videoflow/types"
)

const instrumentationName = "videoflow/vision"

// Metrics holds the OTel instruments for upstream inference calls. The
// Prometheus collector counts calls service-wide; these instruments add
// the per-call span plus token and latency distributions. A nil Metrics
// is valid and records nothing.
type Metrics struct {
	tracer trace.Tracer
	meter  metric.Meter

	requestTotal metric.Int64Counter
	tokenTotal   metric.Int64Counter
	errorTotal   metric.Int64Counter

	requestDuration metric.Float64Histogram
	tokenCount      metric.Int64Histogram

	activeRequests metric.Int64UpDownCounter
}

// NewMetrics builds the instrument set against the global providers.
// With telemetry disabled the globals are noop and every instrument is
// free to record against.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error

	m.requestTotal, err = m.meter.Int64Counter("vision.request.total",
		metric.WithDescription("Total number of vision inference requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	m.tokenTotal, err = m.meter.Int64Counter("vision.token.total",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.errorTotal, err = m.meter.Int64Counter("vision.error.total",
		metric.WithDescription("Total number of failed inference requests"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}

	m.requestDuration, err = m.meter.Float64Histogram("vision.request.duration",
		metric.WithDescription("Inference request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	if err != nil {
		return nil, err
	}

	m.tokenCount, err = m.meter.Int64Histogram("vision.token.count",
		metric.WithDescription("Token count per request"),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 2000, 4000, 8000, 16000, 32000))
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter("vision.request.active",
		metric.WithDescription("Number of in-flight inference requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartCall opens the span for one inference call and bumps the
// in-flight counter. The returned span must be passed to EndCall.
func (m *Metrics) StartCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	if m == nil {
		return ctx, nil
	}

	spanAttrs := []attribute.KeyValue{
		attribute.String("vision.provider", provider),
		attribute.String("vision.model", model),
	}
	// 会话流水线发起的调用带上会话标签;独立调用(健康检查等)没有
	if sessionID, ok := types.SessionID(ctx); ok {
		spanAttrs = append(spanAttrs, attribute.String("session.id", sessionID))
	}

	ctx, span := m.tracer.Start(ctx, "vision.infer",
		trace.WithAttributes(spanAttrs...))

	m.activeRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model)))

	return ctx, span
}

// EndCall closes the call: it ends the span, releases the in-flight
// counter, and records the outcome. resp may be nil on failure.
func (m *Metrics) EndCall(ctx context.Context, span trace.Span, provider, model string, elapsed time.Duration, resp *InferResponse, err error) {
	if m == nil || span == nil {
		return
	}
	defer span.End()

	status := "ok"
	errCode := ""
	if err != nil {
		status = "error"
		errCode = "UNKNOWN"
		if e := types.AsError(err); e != nil {
			errCode = string(e.Code)
		}
	}

	commonAttrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	}

	m.activeRequests.Add(ctx, -1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model)))

	m.requestTotal.Add(ctx, 1, metric.WithAttributes(commonAttrs...))
	m.requestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(commonAttrs...))

	if resp != nil && resp.Usage.TotalTokens > 0 {
		m.tokenTotal.Add(ctx, int64(resp.Usage.TotalTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
			attribute.String("type", "total")))

		m.tokenTotal.Add(ctx, int64(resp.Usage.PromptTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
			attribute.String("type", "prompt")))

		m.tokenTotal.Add(ctx, int64(resp.Usage.CompletionTokens), metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
			attribute.String("type", "completion")))

		m.tokenCount.Record(ctx, int64(resp.Usage.TotalTokens), metric.WithAttributes(commonAttrs...))

		span.SetAttributes(
			attribute.Int("vision.tokens.prompt", resp.Usage.PromptTokens),
			attribute.Int("vision.tokens.completion", resp.Usage.CompletionTokens))
	}

	if errCode != "" {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
			attribute.String("error_code", errCode)))

		span.SetAttributes(attribute.String("error.code", errCode))
	}

	span.SetAttributes(
		attribute.String("vision.status", status),
		attribute.Float64("vision.duration_ms", float64(elapsed.Milliseconds())))
}
