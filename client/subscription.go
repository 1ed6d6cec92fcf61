package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/sirupsen/logrus"
	"github.com/tmaxmax/go-sse"
)

// State is the lifecycle of one stream connection
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosedClean // cancelled by the caller
	StateClosedError // transport or decode failure; terminal, never reconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedClean:
		return "closed-clean"
	case StateClosedError:
		return "closed-error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s is one of the closed states
func (s State) Terminal() bool {
	return s == StateClosedClean || s == StateClosedError
}

// Subscription consumes one server-sent event stream of order documents
type Subscription[T models.Document] struct {
	client  *Client
	path    string
	onEvent func(T)

	mu       sync.Mutex
	state    State
	err      error
	started  bool
	watchers []func(State)
}

// NewSubscription prepares a stream on path. onEvent is called for every
// document received, in order, on the goroutine running Run.
func NewSubscription[T models.Document](c *Client, path string, onEvent func(T)) *Subscription[T] {
	return &Subscription[T]{
		client:  c,
		path:    path,
		onEvent: onEvent,
		state:   StateConnecting,
	}
}

// OnStateChange registers fn to be called on every transition
func (s *Subscription[T]) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// State returns the current state
func (s *Subscription[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the subscription to StateClosedError
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run opens the stream and delivers events until ctx is cancelled, which
// ends in StateClosedClean and a nil error, or the connection fails, which
// ends in StateClosedError. A closed subscription is not reopened; build a
// new one instead.
func (s *Subscription[T]) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSubscriptionUsed
	}
	s.started = true
	s.mu.Unlock()

	err := s.run(ctx)
	if ctx.Err() != nil {
		s.transition(StateClosedClean, nil)
		return nil
	}
	if err == nil {
		// the server never closes a stream on its own
		err = fmt.Errorf("stream %s closed by server: %w", s.path, io.ErrUnexpectedEOF)
	}
	s.transition(StateClosedError, err)
	return err
}

func (s *Subscription[T]) run(ctx context.Context) error {
	req, err := s.client.newRequest(ctx, http.MethodGet, s.path)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream %s: %w", s.path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("stream %s: unexpected content type %q", s.path, ct)
	}

	s.transition(StateOpen, nil)
	log := s.client.logger().WithField("stream", s.path)
	log.Debug("stream open")

	for ev, err := range sse.Read(resp.Body, nil) {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream %s: read failed: %w", s.path, err)
		}
		if ev.Data == "" {
			continue
		}

		doc, err := decodeDocument[T]([]byte(ev.Data))
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"order_id":     doc.Header().OrderID,
			"order_status": doc.Header().OrderStatus,
		}).Debug("stream event")

		if s.onEvent != nil {
			s.onEvent(doc)
		}
	}
	return nil
}

func (s *Subscription[T]) transition(next State, err error) {
	s.mu.Lock()
	if s.state.Terminal() || s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.err = err
	watchers := s.watchers
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(next)
	}
}

func decodeDocument[T models.Document](data []byte) (T, error) {
	var doc T
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return doc, fmt.Errorf("%w: null payload", ErrDecode)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if doc.Header().OrderID == "" {
		return doc, fmt.Errorf("%w: missing order_id", ErrDecode)
	}
	return doc, nil
}
