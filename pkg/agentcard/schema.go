// Package agentcard defines the agent card schema: the static,
// self-described profile an agent submits at registration and the
// validation rules applied to it.
package agentcard

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Capabilities declares the protocol features the agent supports.
// All fields default to false.
type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// Named returns the value of the capability with the given name.
// Lookup is case-insensitive and accepts both the JSON spelling and the
// snake_case variant; ok is false for unrecognized names.
func (c Capabilities) Named(name string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "streaming":
		return c.Streaming, true
	case "pushnotifications", "push_notifications":
		return c.PushNotifications, true
	}
	return false, false
}

// Skill is a named, taggable capability unit within a card. Skills are the
// primary search dimension for discovery.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Card is the digital business card of a registrable agent.
type Card struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	DefaultInputModes  []string     `json:"default_input_modes,omitempty"`
	DefaultOutputModes []string     `json:"default_output_modes,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills,omitempty"`
}

// Field length bounds enforced by Validate.
const (
	MinNameLen        = 2
	MaxNameLen        = 100
	MinDescriptionLen = 10
	MaxDescriptionLen = 1000
)

// Normalize trims the free-text fields and applies defaults for the
// optional mode lists. Called before Validate so length checks see the
// trimmed values.
func (c *Card) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	c.URL = strings.TrimSpace(c.URL)
	c.Version = strings.TrimSpace(c.Version)
	if len(c.DefaultInputModes) == 0 {
		c.DefaultInputModes = []string{"text"}
	}
	if len(c.DefaultOutputModes) == 0 {
		c.DefaultOutputModes = []string{"text"}
	}
}

// Validate checks the required-field schema. The card should be
// Normalized first. Each violation is reported with the offending field.
func (c *Card) Validate() error {
	if l := len(c.Name); l < MinNameLen {
		return fmt.Errorf("card: name must be at least %d characters", MinNameLen)
	} else if l > MaxNameLen {
		return fmt.Errorf("card: name must be at most %d characters", MaxNameLen)
	}
	if l := len(c.Description); l < MinDescriptionLen {
		return fmt.Errorf("card: description must be at least %d characters", MinDescriptionLen)
	} else if l > MaxDescriptionLen {
		return fmt.Errorf("card: description must be at most %d characters", MaxDescriptionLen)
	}
	if c.URL == "" {
		return fmt.Errorf("card: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("card: url must be a valid http(s) URL")
	}
	if c.Version == "" {
		return fmt.Errorf("card: version is required")
	}
	for i, s := range c.Skills {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("card: skills[%d].id is required", i)
		}
		if strings.ContainsAny(s.ID, " \t") {
			return fmt.Errorf("card: skills[%d].id must not contain spaces", i)
		}
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("card: skills[%d].name is required", i)
		}
	}
	return nil
}

// Lint returns advisory warnings for a card that already passed Validate.
// Warnings never block registration; they exist to nudge publishers toward
// cards that discover well.
func (c *Card) Lint() []string {
	var warnings []string
	if len(c.Skills) == 0 {
		warnings = append(warnings, "agent has no skills defined; skills are the primary search dimension")
	}
	if strings.HasPrefix(c.URL, "http://") && !strings.Contains(c.URL, "localhost") {
		warnings = append(warnings, "url uses http instead of https")
	}
	for _, s := range c.Skills {
		if s.Description == "" {
			warnings = append(warnings, fmt.Sprintf("skill %q has no description", s.ID))
		}
		if len(s.Examples) == 0 {
			warnings = append(warnings, fmt.Sprintf("skill %q has no example prompts", s.ID))
		}
	}
	return warnings
}

// ValidationResult is the outcome of validating a card without
// registering it.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Check normalizes and validates the card, collecting errors and warnings
// into a single result suitable for a validate-only endpoint.
func Check(c *Card) ValidationResult {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return ValidationResult{Valid: true, Warnings: c.Lint()}
}

// Parse decodes a Card from JSON bytes, normalizes it, and validates it.
func Parse(data []byte) (*Card, error) {
	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode card: %w", err)
	}
	card.Normalize()
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}
