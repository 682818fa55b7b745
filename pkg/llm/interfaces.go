// Package llm provides completion clients for the query engine: an
// OpenAI-compatible client, an Anthropic client, and the strict query
// extractor applied to their responses.
package llm

import "context"

// CompletionClient is the single collaborator surface the engine needs
// from a model provider. Retry/backoff for the provider call itself is
// transport policy and lives behind this interface, never in the
// orchestrator.
type CompletionClient interface {
	// Complete generates a completion for the prompt. systemMessage may
	// be empty. maxTokens bounds the response length.
	Complete(ctx context.Context, prompt, systemMessage string, maxTokens int) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

var (
	_ CompletionClient = (*Client)(nil)
	_ CompletionClient = (*AnthropicClient)(nil)
	_ CompletionClient = (*MockCompletionClient)(nil)
)
