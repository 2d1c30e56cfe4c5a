package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// All completion providers (OpenAI-compatible, Ollama) implement this
// interface; the orchestrator treats the reply as an opaque string.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// KeyProvider supplies the completion API credential. Implementations may
// memoize; the generator asks on every call.
type KeyProvider interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeyProvider with a fixed value. An empty value means the
// endpoint requires no authentication.
type StaticKey string

// APIKey implements KeyProvider.
func (k StaticKey) APIKey(context.Context) (string, error) {
	return string(k), nil
}
