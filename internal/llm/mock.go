package llm

import (
	"context"
	"fmt"
	"sync"

	"storyloom/pkg/storytypes"
)

// TitleRequest records one SuggestTitle call made against the mock.
type TitleRequest struct {
	OpeningPrompt string
	Genre         string
}

// MockClient is a scripted backend for tests and offline trial runs.
// Continue outcomes are consumed from a queue in order; every request is
// recorded for inspection. With nothing queued it echoes a canned
// passage, so `--provider mock` works interactively too.
type MockClient struct {
	mu         sync.Mutex
	outcomes   []mockOutcome
	title      string
	titleErr   error
	requests   []ContinueRequest
	titleAsks  []TitleRequest
	onContinue func(ContinueRequest)
}

type mockOutcome struct {
	reply *storytypes.StoryReply
	err   error
}

// NewMockClient returns a mock with a default title suggestion and no
// scripted replies.
func NewMockClient() *MockClient {
	return &MockClient{title: "A Mock Tale"}
}

// ProviderName returns the provider name for this client.
func (m *MockClient) ProviderName() string {
	return "mock"
}

// IsConfigured always returns true; the mock needs no credentials.
func (m *MockClient) IsConfigured() bool {
	return true
}

// QueueReply scripts a successful structured reply.
func (m *MockClient) QueueReply(part string, suggestions ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mockOutcome{
		reply: &storytypes.StoryReply{Part: part, Suggestions: suggestions},
	})
}

// QueueError scripts a failed backend call.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mockOutcome{err: err})
}

// QueueRawText scripts a reply delivered as unstructured model text, run
// through the same decoder the real clients use.
func (m *MockClient) QueueRawText(raw string) {
	reply, err := DecodeReply(raw)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mockOutcome{reply: reply, err: err})
}

// SetTitle scripts the SuggestTitle result.
func (m *MockClient) SetTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.title = title
	m.titleErr = nil
}

// SetTitleError makes SuggestTitle fail.
func (m *MockClient) SetTitleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleErr = err
}

// SetContinueHook installs fn to run inside every Continue call, after
// the request is recorded and before the outcome is returned. Tests use
// it to hold a request in flight.
func (m *MockClient) SetContinueHook(fn func(ContinueRequest)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onContinue = fn
}

// Continue pops the next scripted outcome.
func (m *MockClient) Continue(_ context.Context, req ContinueRequest) (*storytypes.StoryReply, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.onContinue

	var out mockOutcome
	if len(m.outcomes) > 0 {
		out = m.outcomes[0]
		m.outcomes = m.outcomes[1:]
	} else {
		out = mockOutcome{reply: &storytypes.StoryReply{
			Part: fmt.Sprintf("The story continues after %q.", lastUserText(req.Turns)),
			Suggestions: []string{
				"Press onward",
				"Look around",
				"Turn back",
			},
		}}
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return out.reply, out.err
}

// SuggestTitle returns the scripted title.
func (m *MockClient) SuggestTitle(_ context.Context, openingPrompt, genre string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleAsks = append(m.titleAsks, TitleRequest{OpeningPrompt: openingPrompt, Genre: genre})
	if m.titleErr != nil {
		return "", m.titleErr
	}
	return m.title, nil
}

// Requests returns a copy of the recorded Continue requests.
func (m *MockClient) Requests() []ContinueRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ContinueRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// TitleRequests returns a copy of the recorded SuggestTitle requests.
func (m *MockClient) TitleRequests() []TitleRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TitleRequest, len(m.titleAsks))
	copy(out, m.titleAsks)
	return out
}

func lastUserText(turns []storytypes.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == storytypes.RoleUser {
			return turns[i].Text
		}
	}
	return ""
}
