// Package signal defines the contract with the external emotion/risk
// classifier and an HTTP client for it. The classifier is treated as an
// untrusted, possibly-failing dependency: callers must tolerate errors and
// malformed results (the risk assessor degrades to its fail-safe level).
package signal

import "context"

// Emotion is one named emotion with intensity and classifier confidence.
type Emotion struct {
	Type       string  `json:"type"`
	Intensity  float64 `json:"intensity"`
	Confidence float64 `json:"confidence"`
}

// RiskFactor is one flagged risk with severity and classifier confidence.
type RiskFactor struct {
	Type       string  `json:"type"`
	Severity   float64 `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// Result is the structured output of one classification call.
type Result struct {
	Emotions          []Emotion    `json:"emotions"`
	OverallSentiment  float64      `json:"overall_sentiment"`
	RiskFactors       []RiskFactor `json:"risk_factors"`
	RequiresAttention bool         `json:"requires_attention"`
}

// Client classifies a text fragment into emotions and risk factors.
type Client interface {
	Classify(ctx context.Context, text string) (*Result, error)
}
