package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/tmaxmax/go-sse"
)

// EventStream reads data payloads from an open text/event-stream response
type EventStream struct {
	Response *http.Response
	events   chan []byte
	cancel   context.CancelFunc
}

// OpenStream GETs url and returns once response headers have arrived.
// headers are added to the request. The stream is closed at test cleanup.
func OpenStream(t *testing.T, url string, headers map[string]string) *EventStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to build stream request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open stream: %v", err)
	}

	s := &EventStream{Response: resp, events: make(chan []byte, 64), cancel: cancel}
	go s.read(resp.Body)
	t.Cleanup(s.Close)
	return s
}

func (s *EventStream) read(body io.Reader) {
	defer close(s.events)

	for ev, err := range sse.Read(body, nil) {
		if err != nil {
			return
		}
		if ev.Data != "" {
			s.events <- []byte(ev.Data)
		}
	}
}

// Next decodes the next event into v, failing the test after timeout
func (s *EventStream) Next(t *testing.T, v interface{}, timeout time.Duration) {
	t.Helper()

	select {
	case data, ok := <-s.events:
		if !ok {
			t.Fatal("Stream closed before the expected event")
		}
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("Failed to decode event %q: %v", data, err)
		}
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for a stream event")
	}
}

// ExpectNone fails the test if an event arrives within wait
func (s *EventStream) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case data, ok := <-s.events:
		if ok {
			t.Fatalf("Unexpected stream event: %s", data)
		}
	case <-time.After(wait):
	}
}

// Closed reports whether the server ended the stream within wait
func (s *EventStream) Closed(wait time.Duration) bool {
	deadline := time.After(wait)
	for {
		select {
		case _, ok := <-s.events:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// Close disconnects the client side of the stream
func (s *EventStream) Close() {
	s.cancel()
	_ = s.Response.Body.Close()
}
