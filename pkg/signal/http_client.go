package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient calls a remote classifier service over HTTP.
type HTTPClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// classifyRequest is the wire request for the classifier service.
type classifyRequest struct {
	Text string `json:"text"`
}

// NewHTTPClient creates a classifier client for the given base URL.
// The timeout bounds a single classification call end to end.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		http:   client,
		logger: logger,
	}
}

// Classify sends the text fragment to the classifier and decodes the result.
// Any transport error, non-2xx status, or empty body is returned as an error;
// the caller owns the fail-safe degradation.
func (c *HTTPClient) Classify(ctx context.Context, text string) (*Result, error) {
	var result Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(classifyRequest{Text: text}).
		SetResult(&result).
		Post("/v1/classify")
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode())
	}

	c.logger.Debug("classifier result",
		slog.Int("emotions", len(result.Emotions)),
		slog.Int("risk_factors", len(result.RiskFactors)),
		slog.Bool("requires_attention", result.RequiresAttention),
	)
	return &result, nil
}
