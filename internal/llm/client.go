// Package llm is a client for an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jobtracker/pkg/circuitbreaker"
	"jobtracker/pkg/config"
	"jobtracker/pkg/metrics"
	"jobtracker/pkg/trace"
)

var (
	// ErrRateLimited is returned when the provider answers 429.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrEmptyResponse is returned when the provider sends no choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Request is one single-shot completion.
type Request struct {
	// Purpose labels metrics and logs: classify, extract, select, summarize.
	Purpose     string
	System      string
	Prompt      string
	JSON        bool
	Temperature float64
	MaxTokens   int
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	cbConfig := circuitbreaker.DefaultConfig()
	// 429 由调用方的重试策略处理，不计入熔断
	cbConfig.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrRateLimited) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded)
	}
	cbConfig.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Model circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker(cbConfig),
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one request and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var content string
	err := c.cb.Execute(func() error {
		start := time.Now()
		out, status, err := c.do(ctx, req)
		metrics.RecordModelCallLatency(req.Purpose, status, time.Since(start))
		content = out
		return err
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) do(ctx context.Context, req Request) (string, string, error) {
	body := chatRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", "error", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", "error", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// 传播 trace_id
	if traceID := trace.FromContext(ctx); traceID != "" {
		httpReq.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", "error", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", "429", fmt.Errorf("%w: retry-after=%q", ErrRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		return "", "5xx", fmt.Errorf("model service 5xx: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", strconv.Itoa(resp.StatusCode), fmt.Errorf("model service error: %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "decode_error", fmt.Errorf("decode model response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", "empty", ErrEmptyResponse
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), "success", nil
}

// Completer is implemented by *Client and by test fakes.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
