package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockResponse is one scripted reply. Err, when set, is returned as-is.
// Otherwise Content goes through the same stop-reason and schema checks
// as a real provider reply; Stop defaults to StopEnd.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Stop    string
	Err     error
}

// TextResponse scripts a reply carrying raw model text.
func TextResponse(text string) MockResponse {
	return MockResponse{Content: json.RawMessage(text)}
}

// MockProvider replays scripted replies in order and records every
// request. Once the script runs out it answers with Fallback, or with
// ErrProviderUnavailable when Fallback is nil.
type MockProvider struct {
	Fallback func(Request) MockResponse

	mu     sync.Mutex
	script []MockResponse
	Calls  []Request
}

func NewMockProvider(script ...MockResponse) *MockProvider {
	return &MockProvider{script: script}
}

// emptyPlanProvider is the provider behind llm.provider=mock: every
// request gets a well-formed plan with nothing scheduled.
func emptyPlanProvider() *MockProvider {
	return &MockProvider{Fallback: func(Request) MockResponse {
		return TextResponse(`{"dailySchedule":{},"studyTips":[]}`)
	}}
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	next, ok := m.pop()
	fallback := m.Fallback
	m.mu.Unlock()

	switch {
	case ok:
	case fallback != nil:
		next = fallback(req)
	default:
		return nil, &ErrProviderUnavailable{}
	}

	if next.Err != nil {
		return nil, next.Err
	}
	stop := next.Stop
	if stop == "" {
		stop = StopEnd
	}
	return finish(req, next.Content, next.Usage, "mock", stop)
}

func (m *MockProvider) pop() (MockResponse, bool) {
	if len(m.script) == 0 {
		return MockResponse{}, false
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next, true
}

func (m *MockProvider) ModelID() string { return "mock" }

// AddResponse appends to the script.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	m.script = append(m.script, resp)
	m.mu.Unlock()
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
