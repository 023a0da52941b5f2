// Package types defines the conversation and reference-content model shared by the engine,
// the stores and the gateway.
package types

import (
	"fmt"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Provider selects which language model answers the next turn.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
)

// DefaultProvider is used when a request does not name one.
const DefaultProvider = ProviderClaude

// ParseProvider validates a provider name. The empty string maps to DefaultProvider.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return DefaultProvider, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderClaude:
		return ProviderClaude, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want openai or claude)", raw)
	}
}

// Message is one entry of the conversation. Only the in-progress assistant message is
// mutated after creation, and only by the typing synchronizer.
type Message struct {
	Role     Role     `json:"role"`
	Content  string   `json:"content"`
	Provider Provider `json:"provider,omitempty"`
}

// CloneMessages returns a copy that callers may keep across later mutations.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

// ValidateMessages checks the role and provider of every message.
func ValidateMessages(msgs []Message) error {
	for i, m := range msgs {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("messages[%d].role: unknown role %q", i, m.Role)
		}
		if m.Provider != "" && m.Provider != ProviderOpenAI && m.Provider != ProviderClaude {
			return fmt.Errorf("messages[%d].provider: unknown provider %q", i, m.Provider)
		}
	}
	return nil
}
