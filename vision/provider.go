package vision

import (
	"context"
	"time"
)

// Provider is the boundary to a vision-capable inference endpoint.
// One implementation serves both per-frame analysis (text + image) and
// synthesis (text only, nil Image).
type Provider interface {
	// Name returns the provider identifier used in logs and errors.
	Name() string

	// Infer sends one prompt, optionally with an image, and returns the
	// model's text. Implementations must not retry; callers own the
	// failure policy.
	Infer(ctx context.Context, req *InferRequest) (*InferResponse, error)

	// HealthCheck verifies the endpoint is reachable.
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// InferRequest is a single inference call. Image is raw encoded bytes
// (PNG/JPEG/WebP); nil means a text-only request.
type InferRequest struct {
	Prompt      string
	Image       []byte
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InferResponse is the model's answer to a single call.
type InferResponse struct {
	Text    string
	Model   string
	Usage   Usage
	Latency time.Duration
}

// HealthStatus reports endpoint reachability.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}
