package provider

import "context"

// MockProvider is a mock completion provider for testing.
type MockProvider struct {
	// Responses to return for each request, in order.
	Responses []*CompletionResponse
	Errors    []error

	// Track calls.
	Calls []CompletionRequest

	currentIndex int
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.Calls = append(m.Calls, request)

	if m.currentIndex < len(m.Errors) && m.Errors[m.currentIndex] != nil {
		err := m.Errors[m.currentIndex]
		m.currentIndex++
		return nil, err
	}

	if m.currentIndex < len(m.Responses) {
		response := m.Responses[m.currentIndex]
		m.currentIndex++
		return response, nil
	}

	return &CompletionResponse{
		Content:      "Mock response",
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}
