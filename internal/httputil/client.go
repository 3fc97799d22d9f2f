// Package httputil provides the HTTP client seam and JSON helpers
// shared by the daemon and the report tool.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Client is the request surface the report tool depends on. *http.Client
// satisfies it through StandardClient; tests swap in a MockClient.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts *http.Client. The embedded methods already
// match the interface.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, or http.DefaultClient when c is nil.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

type mockReply struct {
	status int
	body   string
	err    error
}

// MockClient replays queued replies in order and records every request.
// A request past the end of the queue answers 200 with an empty body.
type MockClient struct {
	mu       sync.Mutex
	requests []*http.Request
	queue    []mockReply
	next     int
}

// NewMockClient returns an empty mock; chain Reply calls to script it.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Reply queues a canned response.
func (m *MockClient) Reply(status int, body string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{status: status, body: body})
	return m
}

// ReplyError queues a transport error.
func (m *MockClient) ReplyError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
	return m
}

// Do records the request and returns the next scripted reply.
func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.next >= len(m.queue) {
		return mockResponse(http.StatusOK, "", req), nil
	}

	reply := m.queue[m.next]
	m.next++
	if reply.err != nil {
		return nil, reply.err
	}
	return mockResponse(reply.status, reply.body, req), nil
}

func mockResponse(status int, body string, req *http.Request) *http.Response {
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

// Get issues a GET through Do.
func (m *MockClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.Do(req)
}

// Post issues a POST through Do.
func (m *MockClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// Requests returns a copy of the recorded requests in arrival order.
func (m *MockClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}
