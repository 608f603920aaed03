package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelSpec configures one notification channel endpoint.
type ChannelSpec struct {
	// Kind is "webhook", "email", or "sms".
	Kind string `yaml:"kind"`
	// Name distinguishes multiple channels of the same kind.
	Name string `yaml:"name"`
	// URL is the webhook target or gateway endpoint.
	URL string `yaml:"url"`
	// Recipient is the email address or phone number, unused for webhooks.
	Recipient string `yaml:"recipient,omitempty"`
	// TimeoutSeconds bounds a single delivery attempt. Default 10.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// Topology maps each alert level to the channels notified at that level.
type Topology struct {
	Levels map[string][]ChannelSpec `yaml:"levels"`
}

var validKinds = map[string]bool{"webhook": true, "email": true, "sms": true}
var knownLevels = map[string]bool{"concern": true, "moderate": true, "severe": true, "emergency": true}

// LoadTopology reads and validates the channel topology YAML.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load channel topology: %w", err)
	}
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse channel topology: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate rejects topologies the dispatcher cannot run with. Every
// alert level must reach at least one staff channel; a level with no
// route would silently swallow crisis alerts.
func (t *Topology) Validate() error {
	for _, level := range []string{"concern", "moderate", "severe", "emergency"} {
		if len(t.Levels[level]) == 0 {
			return &ConfigurationError{
				Setting: "levels." + level,
				Reason:  "at least one notification channel is required per alert level",
			}
		}
	}
	for level, specs := range t.Levels {
		if !knownLevels[level] {
			return &ConfigurationError{
				Setting: "levels." + level,
				Reason:  "unknown alert level",
			}
		}
		for i, s := range specs {
			setting := fmt.Sprintf("levels.%s[%d]", level, i)
			if !validKinds[s.Kind] {
				return &ConfigurationError{
					Setting: setting + ".kind",
					Reason:  fmt.Sprintf("must be webhook, email, or sms, got %q", s.Kind),
				}
			}
			if s.URL == "" {
				return &ConfigurationError{Setting: setting + ".url", Reason: "required"}
			}
			if s.TimeoutSeconds < 0 {
				return &ConfigurationError{
					Setting: setting + ".timeout_seconds",
					Reason:  "must not be negative",
				}
			}
			if (s.Kind == "email" || s.Kind == "sms") && s.Recipient == "" {
				return &ConfigurationError{Setting: setting + ".recipient", Reason: "required for " + s.Kind}
			}
		}
	}
	return nil
}
