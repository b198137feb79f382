// Package mock provides a scripted decision service for tests.
package mock

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/puppeteer/provider"
)

const defaultResponse = `{"thought": "Nothing scripted.", "action": "task_complete", "args": {}}`

// Reply is one scripted outcome: a response text or an error.
type Reply struct {
	Content string
	Err     error
}

// Provider implements provider.Provider for testing. It returns scripted
// replies in order, repeating the last one once the script runs out, and
// records every conversation it was sent.
type Provider struct {
	mu      sync.Mutex
	replies []Reply
	idx     int
	calls   [][]provider.Message
}

// New creates a Provider that answers with the given responses in order.
func New(responses ...string) *Provider {
	replies := make([]Reply, len(responses))
	for i, r := range responses {
		replies[i] = Reply{Content: r}
	}
	return &Provider{replies: replies}
}

// NewScript creates a Provider from replies that may include errors.
func NewScript(replies ...Reply) *Provider {
	return &Provider{replies: replies}
}

// Name returns the provider identifier.
func (m *Provider) Name() string { return "mock" }

// Chat returns the next scripted reply.
func (m *Provider) Chat(_ context.Context, messages []provider.Message) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	if len(m.replies) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	r := m.replies[min(m.idx, len(m.replies)-1)]
	m.idx++
	if r.Err != nil {
		return nil, r.Err
	}
	return &provider.Response{Content: r.Content}, nil
}

// Calls returns the conversations sent so far.
func (m *Provider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}
