package port

import "context"

// AIProvider abstracts the AI backend for embeddings and text completions.
// Implementations can target OpenAI or any API speaking the same protocol.
type AIProvider interface {
	// ModelName returns the identifier of the completion model being used.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call,
	// preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Complete sends a prompt to the completion model and returns plain text.
	Complete(ctx context.Context, prompt string) (string, error)
}
