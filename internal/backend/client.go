package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ConvoChat/internal/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// maxErrorBody caps how much of an error response is kept in UpstreamError
const maxErrorBody = 400

// Completer produces a completion for an assembled prompt
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64, modelID string) (Result, error)
}

// Result is a successful completion
type Result struct {
	Text  string
	Usage Usage
}

// Client calls an OpenAI-compatible chat completions endpoint
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	tokens     metric.Int64Counter
}

// NewClient creates a completion client from the configuration
func NewClient(cfg config.Config, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	duration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	tokens, err := meter.Int64Counter(
		"llm.usage.tokens",
		metric.WithDescription("LLM token usage by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage counter: %w", err)
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		logger:     logger,
		tracer:     tracer,
		duration:   duration,
		tokens:     tokens,
	}, nil
}

// Complete sends the prompt as a single user message and returns the reply
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, modelID string) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "openai_api_call", trace.WithAttributes(
		attribute.String("llm.model", modelID),
		attribute.Float64("llm.temperature", temperature),
	))
	defer span.End()

	if c.apiKey == "" {
		err := &config.ConfigurationError{Field: "OPENAI_API_KEY", Reason: "is not set"}
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	result, err := c.do(ctx, prompt, temperature, modelID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", result.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", result.Usage.CompletionTokens),
	)
	return result, nil
}

func (c *Client) do(ctx context.Context, prompt string, temperature float64, modelID string) (Result, error) {
	start := time.Now()

	reqBody := OpenAIRequest{
		Model:       modelID,
		Messages:    []OpenAIMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &UpstreamError{Kind: KindNetwork, Message: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &UpstreamError{Kind: KindNetwork, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("http.response.status_code", resp.StatusCode)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, statusError(resp.StatusCode, body)
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Result{}, &UpstreamError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "failed to unmarshal response", Err: err}
	}

	if len(apiResp.Choices) == 0 {
		return Result{}, &UpstreamError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "empty response from OpenAI"}
	}

	result := Result{Text: strings.TrimSpace(apiResp.Choices[0].Message.Content)}
	if result.Text == "" {
		return Result{}, &UpstreamError{Kind: KindMalformed, StatusCode: resp.StatusCode, Message: "completion has no content"}
	}
	if apiResp.Usage != nil {
		result.Usage = *apiResp.Usage
		c.recordUsage(ctx, result.Usage)
	}

	c.logger.Debug("completion received",
		"model", apiResp.Model,
		"finish_reason", apiResp.Choices[0].FinishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// recordUsage records token counts the way the API reports them
func (c *Client) recordUsage(ctx context.Context, usage Usage) {
	c.tokens.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(attribute.String("kind", "prompt")))
	c.tokens.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(attribute.String("kind", "completion")))
}

func statusError(status int, body []byte) *UpstreamError {
	kind := KindStatus
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	}

	msg := http.StatusText(status)
	var envelope OpenAIErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	} else if len(body) > 0 {
		msg = truncate(string(body), maxErrorBody)
	}

	return &UpstreamError{Kind: kind, StatusCode: status, Message: msg}
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
