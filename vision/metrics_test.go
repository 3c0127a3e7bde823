package vision

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/videoflow/types"
)

// installManualReader points the global meter provider at an in-memory
// reader for the duration of the test.
func installManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
	return reader
}

// sumInt64 folds all data points of an int64 sum metric into one value.
func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

// histogramCount folds all data points of a float64 histogram into a
// total observation count.
func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "metric %s is not a float64 histogram", name)
			var n uint64
			for _, dp := range h.DataPoints {
				n += dp.Count
			}
			return n
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// ---------------------------------------------------------------------------
// Metrics lifecycle
// ---------------------------------------------------------------------------

func TestMetrics_RecordsCallOutcomes(t *testing.T) {
	reader := installManualReader(t)

	m, err := NewMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	// One success with token usage.
	callCtx, span := m.StartCall(ctx, "openai", "gpt-4o")
	require.NotNil(t, span)
	m.EndCall(callCtx, span, "openai", "gpt-4o", 120*time.Millisecond, &InferResponse{
		Usage: Usage{PromptTokens: 900, CompletionTokens: 100, TotalTokens: 1000},
	}, nil)

	// One failure with a typed code.
	failCtx, failSpan := m.StartCall(ctx, "openai", "gpt-4o")
	m.EndCall(failCtx, failSpan, "openai", "gpt-4o", 40*time.Millisecond, nil,
		types.NewError(types.ErrRateLimited, "slow down"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
	assert.Equal(t, "videoflow/vision", rm.ScopeMetrics[0].Scope.Name)

	requests, ok := sumInt64(t, rm, "vision.request.total")
	require.True(t, ok)
	assert.Equal(t, int64(2), requests)

	errTotal, ok := sumInt64(t, rm, "vision.error.total")
	require.True(t, ok)
	assert.Equal(t, int64(1), errTotal)

	// Balanced +1/-1 per call leaves nothing in flight.
	active, ok := sumInt64(t, rm, "vision.request.active")
	require.True(t, ok)
	assert.Equal(t, int64(0), active)

	// 1000 total + 900 prompt + 100 completion, one instrument.
	tokens, ok := sumInt64(t, rm, "vision.token.total")
	require.True(t, ok)
	assert.Equal(t, int64(2000), tokens)

	assert.Equal(t, uint64(2), histogramCount(t, rm, "vision.request.duration"))
}

func TestMetrics_NoTokenRecordingWithoutUsage(t *testing.T) {
	reader := installManualReader(t)

	m, err := NewMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	callCtx, span := m.StartCall(ctx, "openai", "gpt-4o")
	m.EndCall(callCtx, span, "openai", "gpt-4o", 10*time.Millisecond, &InferResponse{Text: "cached shape"}, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	tokens, ok := sumInt64(t, rm, "vision.token.total")
	if ok {
		assert.Zero(t, tokens)
	}
}

func TestMetrics_NilIsInert(t *testing.T) {
	var m *Metrics

	ctx, span := m.StartCall(context.Background(), "p", "m")
	assert.Nil(t, span)
	assert.Equal(t, context.Background(), ctx)

	// Must be a no-op, not a panic.
	m.EndCall(ctx, span, "p", "m", time.Second, nil, nil)
}

// installSpanRecorder points the global tracer provider at an
// in-memory recorder for the duration of the test.
func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

// spanAttr looks up a string attribute on an ended span.
func spanAttr(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestMetrics_SpanCarriesSessionTag(t *testing.T) {
	recorder := installSpanRecorder(t)

	m, err := NewMetrics()
	require.NoError(t, err)

	// Pipeline calls run under a session-stamped context.
	ctx := types.WithSessionID(context.Background(), "sess-42")
	callCtx, span := m.StartCall(ctx, "openai", "gpt-4o")
	m.EndCall(callCtx, span, "openai", "gpt-4o", 5*time.Millisecond, nil, nil)

	// Standalone calls (health checks and the like) have no session.
	bareCtx, bareSpan := m.StartCall(context.Background(), "openai", "gpt-4o")
	m.EndCall(bareCtx, bareSpan, "openai", "gpt-4o", 5*time.Millisecond, nil, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	got, ok := spanAttr(spans[0], "session.id")
	require.True(t, ok, "pipeline call must be tagged with its session")
	assert.Equal(t, "sess-42", got)

	_, ok = spanAttr(spans[1], "session.id")
	assert.False(t, ok, "standalone call must not carry a session tag")
}

// ---------------------------------------------------------------------------
// Client wiring
// ---------------------------------------------------------------------------

func TestClient_Infer_RecordsMetrics(t *testing.T) {
	reader := installManualReader(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successBody("A lecture recording."))
	}))
	t.Cleanup(server.Close)

	c := NewClient(Config{
		ProviderName: "test",
		APIKey:       "key",
		BaseURL:      server.URL,
		Model:        "gpt-test",
	}, nil)

	_, err := c.Infer(context.Background(), &InferRequest{Prompt: "hi"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests, ok := sumInt64(t, rm, "vision.request.total")
	require.True(t, ok)
	assert.Equal(t, int64(1), requests)

	// successBody reports 7 total, 5 prompt, 2 completion tokens.
	tokens, ok := sumInt64(t, rm, "vision.token.total")
	require.True(t, ok)
	assert.Equal(t, int64(14), tokens)
}
