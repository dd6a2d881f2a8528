package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skilldock/skilldock/core"
)

// Manifest declares everything the runtime needs to know about a skill
// before its code runs: identity, the subscriptions to install on a
// successful start, required configuration constants, and whether the
// skill's context should be flushed from memory when it stops.
//
// Example:
//
//	id: weather
//	name: Weather Skill
//	subscriptions:
//	  - type: topic
//	    channel: weather.request
//	    handler: weather.on_request
//	  - type: event
//	    channel: forecast-ready
//	    handler: weather.on_forecast
//	required_config:
//	  - api_key
//	flush_context: true
type Manifest struct {
	ID             string             `yaml:"id"`
	Name           string             `yaml:"name,omitempty"`
	Subscriptions  []SubscriptionSpec `yaml:"subscriptions,omitempty"`
	RequiredConfig []string           `yaml:"required_config,omitempty"`
	FlushContext   bool               `yaml:"flush_context,omitempty"`
}

// SubscriptionSpec is one declared channel binding.
type SubscriptionSpec struct {
	Type    string `yaml:"type"` // "topic" or "event"
	Channel string `yaml:"channel"`
	Handler string `yaml:"handler"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// Validate checks structural requirements: a non-empty id, well-formed
// subscriptions, and at most one subscription per (type, channel).
func (m Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest: id is required")
	}
	seen := make(map[string]bool, len(m.Subscriptions))
	for i, sub := range m.Subscriptions {
		ct := core.ChannelType(sub.Type)
		if !ct.Valid() {
			return fmt.Errorf("manifest %s: subscription %d: invalid type %q", m.ID, i, sub.Type)
		}
		if sub.Channel == "" {
			return fmt.Errorf("manifest %s: subscription %d: channel is required", m.ID, i)
		}
		if sub.Handler == "" {
			return fmt.Errorf("manifest %s: subscription %d: handler is required", m.ID, i)
		}
		key := sub.Type + "\x00" + sub.Channel
		if seen[key] {
			return fmt.Errorf("manifest %s: duplicate subscription for %s %q", m.ID, sub.Type, sub.Channel)
		}
		seen[key] = true
	}
	return nil
}

func (m Manifest) subscriptions() []core.Subscription {
	subs := make([]core.Subscription, 0, len(m.Subscriptions))
	for _, spec := range m.Subscriptions {
		subs = append(subs, core.Subscription{
			SkillID: m.ID,
			Type:    core.ChannelType(spec.Type),
			Channel: spec.Channel,
			Handler: core.HandlerRef(spec.Handler),
		})
	}
	return subs
}
