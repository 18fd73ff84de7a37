package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
// One instance is created at startup and shared; the underlying http.Client
// pools connections.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	gate     *resiliency.Gate
}

// NewOpenAIClient creates a client for the given endpoint and model. The
// callTimeout is the per-call hard deadline (design 20s).
func NewOpenAIClient(endpoint, apiKey, model string, callTimeout time.Duration) *OpenAIClient {
	if callTimeout <= 0 {
		callTimeout = 20 * time.Second
	}
	return &OpenAIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: callTimeout},
		gate:     resiliency.NewGate("llm", 32, 64),
	}
}

// ModelID returns the configured model identifier.
func (c *OpenAIClient) ModelID() string { return c.model }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Seed        int64     `json:"seed,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat performs one inference call. Errors carry taxonomy kinds: 429 is
// Throttled, 5xx is Transient, network timeouts are DeadlineExceeded, other
// 4xx are InvalidInput.
func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, options *SamplingOptions) (*Response, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	reqBody := chatRequest{Model: c.model, Messages: msgs}
	if options != nil {
		reqBody.Temperature = options.Temperature
		reqBody.MaxTokens = options.MaxTokens
		reqBody.Seed = options.Seed
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, contracts.NewFault(contracts.KindDeadlineExceeded, fmt.Errorf("llm call timed out: %w", err))
		}
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("llm call failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, contracts.Faultf(contracts.KindThrottled, "llm throttled: %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, contracts.Faultf(contracts.KindTransient, "llm server error: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, contracts.Faultf(contracts.KindInvalidInput, "llm rejected request: %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, contracts.NewFault(contracts.KindSchemaViolation, fmt.Errorf("llm: decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, contracts.Faultf(contracts.KindSchemaViolation, "llm: empty choices in response")
	}

	return &Response{
		Content: out.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}
