package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/videoflow/config"
)

// snapshotGlobals 快照全局 OTel 状态并在测试结束后恢复。
// Init 会动 provider、propagator、error handler 三处全局。
func snapshotGlobals(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	origProp := otel.GetTextMapPropagator()
	origHandler := otel.GetErrorHandler()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
		otel.SetTextMapPropagator(origProp)
		otel.SetErrorHandler(origHandler)
	})
}

func TestInit_Disabled(t *testing.T) {
	snapshotGlobals(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	// noop:内部字段都是 nil
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
}

func TestInit_Enabled(t *testing.T) {
	snapshotGlobals(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "videoflow-test",
		SampleRate:   0.5,
	}

	p, err := Init(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotNil(t, p.tp)
	assert.NotNil(t, p.mp)

	// 全局 provider 被替换成 SDK 实现
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")

	// W3C trace context + baggage 注入全局 propagator
	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")

	// SDK 内部错误走注册的 handler,不会 panic
	assert.NotPanics(t, func() { otel.Handle(errors.New("export refused")) })

	t.Cleanup(func() {
		// 没有 collector 在跑,短超时冲刷即可
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	snapshotGlobals(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Real(t *testing.T) {
	snapshotGlobals(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "videoflow-shutdown-test",
		SampleRate:   1.0,
	}

	p, err := Init(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p.tp)
	require.NotNil(t, p.mp)

	// 测试环境没有 OTLP collector,exporter 冲刷可能报连接拒绝;
	// 只验证 Shutdown 不 panic 且在期限内返回。
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func TestServiceResource(t *testing.T) {
	res, err := serviceResource(context.Background(), "videoflow-test")
	require.NoError(t, err)

	var name, version, sdkName string
	for _, kv := range res.Attributes() {
		switch kv.Key {
		case semconv.ServiceNameKey:
			name = kv.Value.AsString()
		case semconv.ServiceVersionKey:
			version = kv.Value.AsString()
		case semconv.TelemetrySDKNameKey:
			sdkName = kv.Value.AsString()
		}
	}
	assert.Equal(t, "videoflow-test", name)
	assert.NotEmpty(t, version)
	assert.Equal(t, "opentelemetry", sdkName, "WithTelemetrySDK stamps the SDK identity")
}

func TestModuleVersion(t *testing.T) {
	// 测试二进制里 ReadBuildInfo 通常报 "(devel)",回退到 "dev"
	assert.Equal(t, "dev", moduleVersion())
}
