package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// OpenAIProvider speaks the OpenAI chat-completions protocol, which Fireworks
// and Ollama also serve.
type OpenAIProvider struct {
	name     string
	client   *http.Client
	apiKey   string
	apiURL   string
	model    string
	executor failsafe.Executor[*http.Response]
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = "openai"
	}
	p := &OpenAIProvider{
		name:   name,
		client: &http.Client{Timeout: timeout},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
	}
	p.executor = failsafe.With(newRetryPolicy(cfg.MaxRetries, func() {
		retriesTotal.WithLabelValues(p.name).Inc()
	}))
	return p
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retriable reports whether the status is worth another attempt.
func (e *StatusError) Retriable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

//nolint:bodyclose // the type parameter is not a live response
func newRetryPolicy(maxRetries int, onRetry func()) retrypolicy.RetryPolicy[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(250*time.Millisecond, 4*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool {
			return shouldRetry(err)
		}).
		OnRetry(func(failsafe.ExecutionEvent[*http.Response]) {
			onRetry()
		}).
		ReturnLastFailure().
		Build()
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retriable()
	}
	// Transport failures.
	return true
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	reqBody := openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		Stream:      true,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	start := time.Now()
	resp, err := p.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		return p.do(ctx, payload)
	})
	if err != nil {
		callsTotal.WithLabelValues(p.name, model, "error").Inc()
		return nil, fmt.Errorf("openai: %w", err)
	}

	return newSSEStream(resp, decodeOpenAIChunk, func(streamErr error) {
		callDuration.WithLabelValues(p.name, model).Observe(time.Since(start).Seconds())
		status := "ok"
		if streamErr != nil {
			status = "stream_error"
		}
		callsTotal.WithLabelValues(p.name, model, status).Inc()
	}), nil
}

func (p *OpenAIProvider) do(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	Stream         bool                  `json:"stream"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func decodeOpenAIChunk(data []byte) (Chunk, error) {
	var payload openAIStreamResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return Chunk{}, fmt.Errorf("openai: decode chunk: %w", err)
	}
	if len(payload.Choices) == 0 {
		return Chunk{}, nil
	}
	return Chunk{Content: payload.Choices[0].Delta.Content}, nil
}
