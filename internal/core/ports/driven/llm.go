package driven

import "context"

// LLMService provides text generation for the prompted capabilities
// (chapter summaries, concept extraction, question generation and grading).
// This is an optional service - when nil, those capabilities fall back locally.
//
// Implementations may include:
//   - OpenAI (GPT-4o, GPT-4o-mini)
//   - Gemini
//   - Ollama (local models)
type LLMService interface {
	// Generate produces text completion from a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// JSON asks the provider for a JSON-only reply where supported.
	JSON bool
}
