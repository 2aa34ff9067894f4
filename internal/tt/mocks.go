package tt

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// -----------------------------------------------------------------------------
// MockModel - implements llms.Model, streaming canned chunks
// -----------------------------------------------------------------------------

// MockModel is an llms.Model that replays canned chunks through the streaming callback and
// returns their concatenation as the response.
type MockModel struct {
	mu        sync.Mutex
	chunks    [][]string
	errors    []error
	callCount int

	// CapturedMessages records the messages of every call.
	CapturedMessages [][]llms.MessageContent
}

// NewMockModel creates a MockModel with no queued responses.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// AddChunks queues the chunks streamed by the next call.
func (m *MockModel) AddChunks(chunks ...string) *MockModel {
	m.chunks = append(m.chunks, chunks)
	for len(m.errors) < len(m.chunks) {
		m.errors = append(m.errors, nil)
	}
	return m
}

// AddError makes the next queued call fail with err after streaming its chunks.
func (m *MockModel) AddError(err error) *MockModel {
	m.chunks = append(m.chunks, nil)
	m.errors = append(m.errors, err)
	return m
}

// CallCount returns the number of GenerateContent calls.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// GenerateContent implements llms.Model.
func (m *MockModel) GenerateContent(
	ctx context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.mu.Lock()
	idx := m.callCount
	m.callCount++
	m.CapturedMessages = append(m.CapturedMessages, messages)
	m.mu.Unlock()

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var chunks []string
	var err error
	if idx < len(m.chunks) {
		chunks = m.chunks[idx]
		err = m.errors[idx]
	}

	var content string
	for _, chunk := range chunks {
		content += chunk
		if opts.StreamingFunc != nil {
			if serr := opts.StreamingFunc(ctx, []byte(chunk)); serr != nil {
				return nil, serr
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

// Call implements llms.Model.
func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Compile-time check that MockModel implements llms.Model.
var _ llms.Model = (*MockModel)(nil)
