package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// MockClient is a scripted in-process provider used by tests and the
// deterministic evaluation mode. Responses are consumed FIFO unless ChatFn
// overrides the behavior.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error

	// ChatFn, when set, fully replaces the scripted queue.
	ChatFn func(ctx context.Context, messages []Message, opts Options) (string, error)
}

// NewMockClient creates a client that replies with the given responses in
// order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Enqueue appends scripted responses.
func (m *MockClient) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// SetError makes every subsequent call fail with err.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Prompts returns the user-visible content of every call received.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// CallCount returns how many calls the mock served.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// IsAvailable always reports true.
func (m *MockClient) IsAvailable() bool { return true }

// Complete answers a single prompt.
func (m *MockClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return m.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
}

// Chat pops the next scripted response.
func (m *MockClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if m.ChatFn != nil {
		m.record(messages)
		return m.ChatFn(ctx, messages, opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(messages) > 0 {
		m.prompts = append(m.prompts, messages[len(messages)-1].Content)
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mock llm: no scripted response for call %d", len(m.prompts))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *MockClient) record(messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(messages) > 0 {
		m.prompts = append(m.prompts, messages[len(messages)-1].Content)
	}
}

// MockEmbedder derives deterministic unit vectors from content, so the same
// text always lands on the same point and distinct texts spread out.
type MockEmbedder struct {
	Dims int
}

// NewMockEmbedder creates an embedder with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{Dims: dims}
}

// Embed hashes the text into a stable pseudo-random unit vector.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.Dims)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	var norm float64
	for i := range vec {
		// xorshift keeps the stream deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000.0
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

// Dimensions returns the vector width.
func (m *MockEmbedder) Dimensions() int { return m.Dims }
