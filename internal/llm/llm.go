// Package llm adapts model providers to the three capabilities the receipt flow needs:
// text completion, embeddings and image description.
package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    string
	Content string
}

// Completer produces the next model response given a system prompt and the running history.
type Completer interface {
	Complete(ctx context.Context, prompt string, history []Message) (string, error)
}

// Embedder turns normalized text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vision answers a prompt about one image.
type Vision interface {
	Describe(ctx context.Context, prompt string, image []byte, contentType string) (string, error)
}

// Options are the sampling settings shared by providers.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Seed        int
}
