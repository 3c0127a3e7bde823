package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/videoflow/framecache"
	"github.com/BaSui01/videoflow/types"
	"github.com/BaSui01/videoflow/vision"
)

// =============================================================================
// 🔌 协作方装配
// =============================================================================
// 推理提供方与帧缓存的透明包装:行为不变,顺带记录指标。
// 在 cmd 装配层套上,业务包对指标无感知。

// InstrumentProvider 包装视觉推理提供方,记录每次调用的
// 结果、耗时与 token 用量。collector 为 nil 时原样返回。
func InstrumentProvider(p vision.Provider, c *Collector) vision.Provider {
	if c == nil {
		return p
	}
	return &instrumentedProvider{inner: p, collector: c}
}

type instrumentedProvider struct {
	inner     vision.Provider
	collector *Collector
}

func (p *instrumentedProvider) Name() string { return p.inner.Name() }

func (p *instrumentedProvider) Infer(ctx context.Context, req *vision.InferRequest) (*vision.InferResponse, error) {
	start := time.Now()
	resp, err := p.inner.Infer(ctx, req)

	model := req.Model
	if resp != nil && resp.Model != "" {
		model = resp.Model
	}
	status := "ok"
	var promptTokens, completionTokens int
	if err != nil {
		status = inferenceStatus(err)
	} else {
		promptTokens = resp.Usage.PromptTokens
		completionTokens = resp.Usage.CompletionTokens
	}
	p.collector.RecordInference(p.inner.Name(), model, status, time.Since(start), promptTokens, completionTokens)
	return resp, err
}

func (p *instrumentedProvider) HealthCheck(ctx context.Context) (*vision.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// inferenceStatus 把推理错误折叠成低基数的状态标签。
func inferenceStatus(err error) string {
	if e := types.AsError(err); e != nil {
		switch e.Code {
		case types.ErrRateLimited:
			return "rate_limited"
		case types.ErrAuthentication:
			return "auth"
		case types.ErrUpstreamTimeout:
			return "timeout"
		default:
			return "error"
		}
	}
	return "error"
}

// InstrumentCache 包装帧缓存,记录命中与未命中。
// collector 为 nil 时原样返回。
func InstrumentCache(cache framecache.Cache, c *Collector) framecache.Cache {
	if c == nil {
		return cache
	}
	return &instrumentedCache{inner: cache, collector: c}
}

type instrumentedCache struct {
	inner     framecache.Cache
	collector *Collector
}

func (ic *instrumentedCache) Get(ctx context.Context, key string) (*framecache.Entry, error) {
	entry, err := ic.inner.Get(ctx, key)
	switch {
	case err == nil:
		ic.collector.RecordCacheHit("frame")
	case errors.Is(err, framecache.ErrCacheMiss):
		ic.collector.RecordCacheMiss("frame")
	}
	return entry, err
}

func (ic *instrumentedCache) Set(ctx context.Context, key string, entry *framecache.Entry) error {
	return ic.inner.Set(ctx, key, entry)
}

func (ic *instrumentedCache) Delete(ctx context.Context, key string) error {
	return ic.inner.Delete(ctx, key)
}

func (ic *instrumentedCache) Clear(ctx context.Context) error {
	return ic.inner.Clear(ctx)
}

func (ic *instrumentedCache) Key(sessionID string, frame types.Frame, prompt string) string {
	return ic.inner.Key(sessionID, frame, prompt)
}
