// Package testutil provides shared test helpers for inboxhooks.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// FakeClock provides deterministic time for testing.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// TestContext returns a context with a 5-second timeout.
// The context is cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// RecordedRequest is a request captured by a RecordingServer.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// RecordingServer is an httptest server that records every request and
// answers with a configurable status code.
type RecordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	location string
	delay    time.Duration
	requests []RecordedRequest
}

// NewRecordingServer starts a server answering 200 OK.
// It is closed when the test completes.
func NewRecordingServer(t *testing.T) *RecordingServer {
	t.Helper()
	s := &RecordingServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *RecordingServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	status, location, delay := s.status, s.location, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
}

// RespondWith sets the status code for subsequent requests.
func (s *RecordingServer) RespondWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// RedirectTo answers subsequent requests with status and a Location header.
func (s *RecordingServer) RedirectTo(location string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = location
	s.status = status
}

// Delay makes subsequent responses wait for d.
func (s *RecordingServer) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns a copy of the recorded requests.
func (s *RecordingServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns the number of recorded requests.
func (s *RecordingServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
