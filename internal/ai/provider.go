package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-call sampling parameters.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Provider completes a prompt sequence. Upstream failures are reported
// wrapped in common.ErrModelUnavailable.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Namer is implemented by providers that can report the model they call.
type Namer interface {
	ModelName() string
}
