package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookChannel posts the structured alert payload to an HTTP endpoint
// (pager bridge, chat integration, dashboard hook).
type WebhookChannel struct {
	name string
	http *resty.Client
	path string
}

// NewWebhookChannel creates a webhook channel posting to url.
func NewWebhookChannel(name, url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		name: name,
		http: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		path: url,
	}
}

func (c *WebhookChannel) Name() string { return c.name }

// webhookPayload is the wire shape: structured fields plus the rendered
// text body and an acknowledgment action the receiver can wire to a button.
type webhookPayload struct {
	Message
	Text      string `json:"text"`
	AckAction string `json:"ack_action"`
}

func (c *WebhookChannel) Send(ctx context.Context, m Message) error {
	payload := webhookPayload{
		Message:   m,
		Text:      m.Render(),
		AckAction: fmt.Sprintf("/v1/cases/%s/resolve", m.CaseID),
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post(c.path)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", c.name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s: status %d", c.name, resp.StatusCode())
	}
	return nil
}

// EmailChannel delivers alerts through an email gateway service.
type EmailChannel struct {
	name string
	http *resty.Client
	url  string
	to   []string
}

// NewEmailChannel creates an email channel posting to a gateway endpoint.
func NewEmailChannel(name, gatewayURL string, recipients []string, timeout time.Duration) *EmailChannel {
	return &EmailChannel{
		name: name,
		http: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		url:  gatewayURL,
		to:   recipients,
	}
}

func (c *EmailChannel) Name() string { return c.name }

func (c *EmailChannel) Send(ctx context.Context, m Message) error {
	payload := map[string]any{
		"to":      c.to,
		"subject": fmt.Sprintf("%s CRISIS ALERT: case %s", m.Severity, m.CaseID),
		"body":    m.Render(),
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post(c.url)
	if err != nil {
		return fmt.Errorf("email %s: %w", c.name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("email %s: status %d", c.name, resp.StatusCode())
	}
	return nil
}

// SMSChannel delivers alerts through an SMS gateway service. The body is
// compressed to the essentials; SMS has no room for the full rendering.
type SMSChannel struct {
	name string
	http *resty.Client
	url  string
	to   []string
}

// NewSMSChannel creates an SMS channel posting to a gateway endpoint.
func NewSMSChannel(name, gatewayURL string, recipients []string, timeout time.Duration) *SMSChannel {
	return &SMSChannel{
		name: name,
		http: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		url:  gatewayURL,
		to:   recipients,
	}
}

func (c *SMSChannel) Name() string { return c.name }

func (c *SMSChannel) Send(ctx context.Context, m Message) error {
	payload := map[string]any{
		"to":   c.to,
		"text": fmt.Sprintf("%s %s crisis, case %s, patient %s", m.Severity, m.AlertLevel, m.CaseID, m.MaskedPatientID),
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post(c.url)
	if err != nil {
		return fmt.Errorf("sms %s: %w", c.name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms %s: status %d", c.name, resp.StatusCode())
	}
	return nil
}
