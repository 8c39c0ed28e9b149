// Package testutil provides helpers for deterministic fetch tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Response defines a fixed HTTP reply for a list path.
type Response struct {
	Status int
	Body   string
	// FailFirst makes the first FailFirst requests answer 503.
	FailFirst int
}

// ListStub serves scripted rule lists and counts requests per path.
type ListStub struct {
	URL    string
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	requests  map[string]int
	agents    []string
}

// StartListStub starts an HTTP server that answers each path in responses.
// Unknown paths get 404. The server is closed when the test ends.
func StartListStub(t *testing.T, responses map[string]Response) *ListStub {
	t.Helper()

	stub := &ListStub{
		responses: responses,
		requests:  make(map[string]int),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.serve))
	stub.URL = stub.server.URL
	t.Cleanup(stub.Close)
	return stub
}

func (s *ListStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	count := s.requests[r.URL.Path]
	s.agents = append(s.agents, r.UserAgent())
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if count <= resp.FailFirst {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp.Body))
}

// Location returns the absolute URL of path on the stub.
func (s *ListStub) Location(path string) string {
	return s.URL + path
}

// Requests returns how many requests path received.
func (s *ListStub) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// UserAgents returns the User-Agent header of every request seen.
func (s *ListStub) UserAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.agents...)
}

// Close shuts the server down.
func (s *ListStub) Close() {
	s.server.Close()
}

// ClosedURL returns a URL whose server has already shut down, so every
// request against it fails at the transport level.
func ClosedURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}
