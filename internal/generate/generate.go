// Package generate abstracts the text-generation service. Output is
// untrusted: callers must tolerate fenced, malformed, or out-of-domain
// responses.
package generate

import "context"

// Generator produces text from a system instruction and a user prompt,
// bounded by maxTokens.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)

	// GenerateStream invokes onChunk for each incremental text chunk and
	// returns the accumulated full text. onChunk may be nil.
	GenerateStream(ctx context.Context, system, prompt string, maxTokens int, onChunk func(chunk string)) (string, error)
}
