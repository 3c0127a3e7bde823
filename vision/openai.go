// =============================================================================
// VideoFlow OpenAI-Compatible Vision Client
// =============================================================================
// HTTP adapter for any OpenAI-compatible chat-completions endpoint with
// vision input (OpenAI, Qwen-VL, GLM-4V, local vLLM deployments, ...).
// Images travel inline as base64 data URLs; errors map onto the unified
// types.Error taxonomy so callers can tell rate limiting apart from
// other upstream failures.
// =============================================================================

package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/videoflow/internal/tlsutil"
	"github.com/BaSui01/videoflow/types"
)

// Config holds the configuration for an OpenAI-compatible vision client.
type Config struct {
	// ProviderName is the identifier used in logs and errors (e.g. "openai", "qwen").
	ProviderName string

	// APIKey is the authentication key for the endpoint.
	APIKey string

	// BaseURL is the base URL of the endpoint (e.g. "https://api.openai.com/v1").
	BaseURL string

	// Model is the model used when the request does not name one.
	Model string

	// Timeout is the HTTP client timeout. Defaults to 2m if zero.
	Timeout time.Duration

	// MaxTokens caps the completion length when the request does not set one.
	MaxTokens int

	// Temperature is the default sampling temperature.
	Temperature float64

	// RequestsPerSecond throttles outgoing calls client-side. Zero disables.
	RequestsPerSecond float64

	// EndpointPath is the chat completions path. Defaults to "/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the models list path used by HealthCheck. Defaults to "/models".
	ModelsEndpoint string

	// BuildHeaders optionally replaces the default Bearer-token headers.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Client is a vision Provider backed by an OpenAI-compatible HTTP endpoint.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

var _ Provider = (*Client)(nil)

// NewClient creates a vision client with the given config.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	logger = logger.With(zap.String("component", "vision_client"))

	m, err := NewMetrics()
	if err != nil {
		logger.Warn("otel instruments unavailable, calls will not be metered", zap.Error(err))
	}

	return &Client{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(timeout),
		limiter: limiter,
		metrics: m,
		logger:  logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.cfg.ProviderName }

// buildHeaders applies headers to the HTTP request.
func (c *Client) buildHeaders(req *http.Request, apiKey string) {
	if c.cfg.BuildHeaders != nil {
		c.cfg.BuildHeaders(req, apiKey)
		return
	}
	// Default: Bearer token auth
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// endpoint builds the full URL for a given path.
func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(c.cfg.BaseURL, "/"), path)
}

// Infer performs one chat-completions call. Requests with an Image are
// sent as multimodal content parts; nil-Image requests are plain text.
// No retries happen here.
func (c *Client) Infer(ctx context.Context, req *InferRequest) (out *InferResponse, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrInferenceFailed, "rate limiter wait aborted").
				WithCause(err).WithProvider(c.Name())
		}
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	// The clock starts after the limiter wait: rate pacing is ours,
	// latency is the endpoint's.
	start := time.Now()
	ctx, span := c.metrics.StartCall(ctx, c.Name(), model)
	defer func() { c.metrics.EndCall(ctx, span, c.Name(), model, time.Since(start), out, err) }()

	body := chatRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    []chatMessage{buildUserMessage(req.Prompt, req.Image)},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.buildHeaders(httpReq, c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(c.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		return nil, mapHTTPError(resp.StatusCode, msg, c.Name())
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(c.Name())
	}
	if len(cr.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "response contained no choices").
			WithHTTPStatus(http.StatusBadGateway).WithProvider(c.Name())
	}

	out = &InferResponse{
		Text:    cr.Choices[0].Message.Content,
		Model:   cr.Model,
		Latency: time.Since(start),
		Usage: Usage{
			PromptTokens:     cr.Usage.PromptTokens,
			CompletionTokens: cr.Usage.CompletionTokens,
			TotalTokens:      cr.Usage.TotalTokens,
		},
	}
	c.logger.Debug("inference call completed",
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", out.Latency))
	return out, nil
}

// HealthCheck verifies the endpoint is reachable.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.buildHeaders(httpReq, c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp.Body)
		return &HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", c.cfg.ProviderName, resp.StatusCode, msg)
	}

	return &HealthStatus{Healthy: true, Latency: latency}, nil
}

// buildUserMessage assembles the user message, inlining the image as a
// base64 data URL when present.
func buildUserMessage(prompt string, image []byte) chatMessage {
	if len(image) == 0 {
		return chatMessage{Role: "user", Content: prompt}
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		DetectImageMIME(image), base64.StdEncoding.EncodeToString(image))
	return chatMessage{
		Role: "user",
		Parts: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	}
}

// DetectImageMIME sniffs the image format from magic bytes.
// Unknown formats fall back to image/png.
func DetectImageMIME(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	default:
		return "image/png"
	}
}
