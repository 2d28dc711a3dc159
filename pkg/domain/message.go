package domain

import (
	"strings"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversational entry.
// Histories are ordered, append-only slices of Messages.
type Message struct {
	Role      Role           `json:"role" yaml:"role"`
	Content   string         `json:"content" yaml:"content"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Clone returns a deep copy of the message, including its metadata map.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}

// CloneMessages copies a slice of messages so callers can't alias store internals.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ConcatMessages merges streamed message chunks into one message.
// Content is concatenated in order; role and name are taken from the first
// chunk that sets them, and metadata keys from later chunks win.
func ConcatMessages(chunks []Message) Message {
	var (
		out Message
		sb  strings.Builder
	)
	for _, c := range chunks {
		if out.Role == "" {
			out.Role = c.Role
		}
		if out.Name == "" {
			out.Name = c.Name
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = c.CreatedAt
		}
		sb.WriteString(c.Content)
		for k, v := range c.Metadata {
			if out.Metadata == nil {
				out.Metadata = make(map[string]any)
			}
			out.Metadata[k] = v
		}
	}
	out.Content = sb.String()
	return out
}
