// Package vision produces a FeatureEnvelope from an uploaded card image:
// OCR blocks and labels from the vision service, plus local pixel analyses
// (card boundary, border metrics, holo variance, font metrics, quality).
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// Label is a detected scene/content label.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Analysis is everything the external vision service returns for one image.
type Analysis struct {
	Blocks           []contracts.OCRBlock `json:"blocks"`
	Labels           []Label              `json:"labels"`
	ModerationLabels []Label              `json:"moderationLabels"`
}

// Backend is the external vision service: OCR, label detection and content
// moderation in one call. Implementations must be safe for concurrent use.
type Backend interface {
	Analyze(ctx context.Context, image []byte) (*Analysis, error)
}

// HTTPBackend talks to a vision analysis service over JSON.
type HTTPBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
	gate     *resiliency.Gate
}

// NewHTTPBackend creates a pooled client for the vision service.
func NewHTTPBackend(endpoint, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		gate:     resiliency.NewGate("vision", 32, 64),
	}
}

type analyzeRequest struct {
	Image string `json:"image"` // base64-encoded bytes
}

// Analyze submits the image for OCR, labeling and moderation.
func (b *HTTPBackend) Analyze(ctx context.Context, image []byte) (*Analysis, error) {
	if err := b.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer b.gate.Release()

	body, err := json.Marshal(analyzeRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, fmt.Errorf("vision: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vision: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, contracts.NewFault(contracts.KindDeadlineExceeded, fmt.Errorf("vision call timed out: %w", err))
		}
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("vision call failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, contracts.Faultf(contracts.KindThrottled, "vision throttled: %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, contracts.Faultf(contracts.KindTransient, "vision server error: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, contracts.Faultf(contracts.KindInvalidInput, "vision rejected request: %d", resp.StatusCode)
	}

	var out Analysis
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("vision: decode response: %w", err))
	}
	return &out, nil
}
