// Package llm wraps the inference service behind a small client interface
// with deterministic sampling, fault classification and an optional
// canonical-JSON response cache.
package llm

import (
	"context"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// SamplingOptions bound the inference call. Temperature stays within
// [0.1, 0.2] per the determinism contract.
type SamplingOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Seed        int64   `json:"seed"`
}

// Usage reports token consumption for telemetry.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the model output plus usage accounting.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Client is the inference interface. Implementations must be safe for
// concurrent use; the pipeline shares one client across executions.
type Client interface {
	Chat(ctx context.Context, messages []Message, options *SamplingOptions) (*Response, error)
	ModelID() string
}
