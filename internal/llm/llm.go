// Package llm defines the text-generation oracle consumed by relevance
// scoring, plus a rate-limited HTTP client for a local Ollama server.
package llm

import "context"

// Oracle generates a text completion for a prompt. Responses are expected to
// contain JSON, possibly wrapped in a fenced code block; parsing is the
// caller's concern.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
