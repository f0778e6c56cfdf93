package llm

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockRequest is one call seen by MockLLMClient.
type MockRequest struct {
	Prompt      string
	System      string
	Temperature float64
}

// MockLLMClient is an LLMClient for tests. GenerateResponseFunc decides the
// answer; every request is recorded.
type MockLLMClient struct {
	// GenerateResponseFunc answers each call. Nil returns an empty result.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	Model    string
	Endpoint string

	GenerateResponseCalls atomic.Int64

	mu       sync.Mutex
	requests []MockRequest
}

// NewMockLLMClient creates a mock named mock-model at http://mock-endpoint.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// FencedJSON wraps body the way the stage prompts ask models to answer.
func FencedJSON(body string) *GenerateResponseResult {
	return &GenerateResponseResult{Content: "```json\n" + body + "\n```"}
}

func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.GenerateResponseCalls.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{Prompt: prompt, System: systemMessage, Temperature: temperature})
	m.mu.Unlock()

	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return &GenerateResponseResult{}, nil
}

// Requests returns every request received so far, oldest first.
func (m *MockLLMClient) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// Prompts returns the user prompt of every request received so far.
func (m *MockLLMClient) Prompts() []string {
	reqs := m.Requests()
	prompts := make([]string, len(reqs))
	for i, r := range reqs {
		prompts[i] = r.Prompt
	}
	return prompts
}

func (m *MockLLMClient) GetModel() string {
	return m.Model
}

func (m *MockLLMClient) GetEndpoint() string {
	return m.Endpoint
}

var _ LLMClient = (*MockLLMClient)(nil)
