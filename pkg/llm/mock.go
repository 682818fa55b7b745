package llm

import "context"

// MockCompletionClient is a configurable mock for testing. Set the
// function field to control behavior; calls are counted for
// verification.
type MockCompletionClient struct {
	// CompleteFunc is called when Complete is invoked. If nil, returns
	// empty string and nil error.
	CompleteFunc func(ctx context.Context, prompt, systemMessage string, maxTokens int) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// CompleteCalls counts invocations, including failed ones.
	CompleteCalls int

	// Prompts records every prompt passed to Complete.
	Prompts []string
}

// NewMockCompletionClient creates a new mock with defaults.
func NewMockCompletionClient() *MockCompletionClient {
	return &MockCompletionClient{Model: "mock-model"}
}

// Complete implements CompletionClient.
func (m *MockCompletionClient) Complete(ctx context.Context, prompt, systemMessage string, maxTokens int) (string, error) {
	m.CompleteCalls++
	m.Prompts = append(m.Prompts, prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage, maxTokens)
	}
	return "", nil
}

// GetModel implements CompletionClient.
func (m *MockCompletionClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}
