package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

type mockResponse struct {
	result any
	err    error
}

// mockProvider replays queued responses per method and records every call.
type mockProvider struct {
	mu        sync.Mutex
	responses map[string][]mockResponse
	calls     []string
	params    map[string][]any
	listeners map[Event][]Listener
	failOn    Event
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		responses: make(map[string][]mockResponse),
		params:    make(map[string][]any),
		listeners: make(map[Event][]Listener),
	}
}

func (m *mockProvider) queue(method string, result any, err error) *mockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method] = append(m.responses[method], mockResponse{result: result, err: err})
	return m
}

func (m *mockProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.params[method] = append(m.params[method], params...)
	q := m.responses[method]
	if len(q) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("unexpected call to %s", method)
	}
	resp := q[0]
	m.responses[method] = q[1:]
	m.mu.Unlock()

	if resp.err != nil {
		return nil, resp.err
	}
	return json.Marshal(resp.result)
}

func (m *mockProvider) On(event Event, l Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event == m.failOn {
		return fmt.Errorf("cannot subscribe to %s", event)
	}
	m.listeners[event] = append(m.listeners[event], l)
	return nil
}

func (m *mockProvider) RemoveListener(event Event, l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[event] = slices.DeleteFunc(m.listeners[event], func(x Listener) bool { return x == l })
}

func (m *mockProvider) emit(event Event, payload any) {
	m.mu.Lock()
	ls := slices.Clone(m.listeners[event])
	m.mu.Unlock()
	for _, l := range ls {
		l.HandleEvent(event, payload)
	}
}

func (m *mockProvider) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockProvider) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ls := range m.listeners {
		n += len(ls)
	}
	return n
}
