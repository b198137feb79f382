// Package provider defines the decision service agents consult each cycle,
// and the backends that implement it.
package provider

import "context"

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is a completed provider response.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider turns a conversation into the next piece of text. Implementations
// must be safe for concurrent use by several agent loops.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai", "heuristic").
	Name() string

	// Chat sends the conversation and returns the complete response.
	Chat(ctx context.Context, messages []Message) (*Response, error)
}

// splitSystem separates system turns, joined by blank lines, from the rest
// of the conversation for APIs that take the system prompt out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
