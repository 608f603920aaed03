package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPFlagger flags sessions for priority human review on an external
// review service. Calls are best effort; the engine logs failures and
// moves on.
type HTTPFlagger struct {
	http *resty.Client
}

// NewHTTPFlagger creates a flagger for the given review service URL.
func NewHTTPFlagger(baseURL string, timeout time.Duration) *HTTPFlagger {
	return &HTTPFlagger{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type flagRequest struct {
	Reason   string `json:"reason"`
	Level    string `json:"level"`
	Priority int    `json:"priority"`
}

func (f *HTTPFlagger) Flag(ctx context.Context, sessionID, caseID, level string) error {
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(flagRequest{
			Reason:   "crisis-case-opened:" + caseID,
			Level:    level,
			Priority: flagPriority(level),
		}).
		Post("/v1/sessions/" + sessionID + "/flag")
	if err != nil {
		return fmt.Errorf("flag session: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("flag session: status %d", resp.StatusCode())
	}
	return nil
}

func flagPriority(level string) int {
	switch level {
	case "emergency":
		return 1
	case "severe":
		return 2
	case "moderate":
		return 3
	default:
		return 4
	}
}
