package adapter

import (
	"context"
	"errors"
)

// ErrPermanent marks adapter failures that retrying cannot fix
// (blocked bot, deleted chat, rejected prompt). Wrap it with %w.
var ErrPermanent = errors.New("permanent adapter failure")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the port for LLM chat.
type AIServiceAdapter interface {
	// Provider names the backend for logs and metrics ("openai", "gemini").
	Provider() string

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
}
