package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ConfigSessionID is the configurable key that names the session by default.
const ConfigSessionID = "session_id"

// Config carries per-invocation configuration through a Unit tree.
// Unknown configurable keys are ignored by units that don't read them.
type Config struct {
	Configurable map[string]any `json:"configurable,omitempty" yaml:"configurable,omitempty"`
	Tags         []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Get returns a configurable value.
func (c Config) Get(key string) (any, bool) {
	v, ok := c.Configurable[key]
	return v, ok
}

// String returns a configurable value rendered as a string. Missing, nil and
// empty values all report false.
func (c Config) String(key string) (string, bool) {
	v, ok := c.Configurable[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return s, s != ""
}

// With returns a copy of c with a configurable key set. The receiver is not modified.
func (c Config) With(key string, value any) Config {
	out := c.clone()
	out.Configurable[key] = value
	return out
}

// Merge layers other over c. Configurable and metadata keys from other win;
// tags are appended.
func (c Config) Merge(other Config) Config {
	out := c.clone()
	for k, v := range other.Configurable {
		out.Configurable[k] = v
	}
	for k, v := range other.Metadata {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any)
		}
		out.Metadata[k] = v
	}
	out.Tags = append(out.Tags, other.Tags...)
	return out
}

func (c Config) clone() Config {
	out := Config{
		Configurable: make(map[string]any, len(c.Configurable)+1),
		Tags:         append([]string(nil), c.Tags...),
	}
	for k, v := range c.Configurable {
		out.Configurable[k] = v
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// DecodeConfig decodes the configurable keys into target (a pointer to a struct),
// using `mapstructure` tags. Keys the target does not declare are ignored.
func DecodeConfig(cfg Config, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := dec.Decode(cfg.Configurable); err != nil {
		return &ConfigError{Field: "configurable", Reason: err.Error(), Err: err}
	}
	return nil
}
