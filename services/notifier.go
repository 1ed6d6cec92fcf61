package services

import (
	"sync"

	"github.com/google/uuid"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/sirupsen/logrus"
)

// Listener receives every document published on the channel it is subscribed to.
// Listeners run on the publisher's goroutine and must not block.
type Listener func(doc models.Document)

type subscription struct {
	id       string
	listener Listener
}

// Notifier is the process-wide publish/subscribe hub for order changes.
// One instance is built at startup and shared by every handler that
// publishes or streams. Nothing is buffered or replayed: a listener only
// sees documents published while it is registered.
type Notifier struct {
	mu       sync.RWMutex
	channels map[models.Kind][]subscription
	log      logrus.FieldLogger
}

// NewNotifier creates an empty notifier
func NewNotifier(log logrus.FieldLogger) *Notifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{
		channels: make(map[models.Kind][]subscription),
		log:      log,
	}
}

// Subscribe registers listener on channel. The returned function removes it
// again and is safe to call more than once.
func (n *Notifier) Subscribe(channel models.Kind, listener Listener) (unsubscribe func()) {
	sub := subscription{id: uuid.NewString(), listener: listener}

	n.mu.Lock()
	n.channels[channel] = append(n.channels[channel], sub)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(channel, sub.id) })
	}
}

func (n *Notifier) remove(channel models.Kind, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.channels[channel]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight publishes keep their snapshot intact
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(n.channels, channel)
			} else {
				n.channels[channel] = next
			}
			return
		}
	}
}

// Publish synchronously hands doc to every listener registered on channel at
// the moment of the call. A panicking listener is logged and skipped; the
// remaining listeners still run.
func (n *Notifier) Publish(channel models.Kind, doc models.Document) {
	n.mu.RLock()
	subs := n.channels[channel]
	n.mu.RUnlock()

	for _, s := range subs {
		n.deliver(channel, s, doc)
	}
}

func (n *Notifier) deliver(channel models.Kind, s subscription, doc models.Document) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithFields(logrus.Fields{
				"channel":      channel,
				"subscription": s.id,
				"order_id":     doc.Header().OrderID,
			}).Errorf("listener panicked: %v", r)
		}
	}()
	s.listener(doc)
}

// ListenerCount returns the number of listeners currently on channel
func (n *Notifier) ListenerCount(channel models.Kind) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.channels[channel])
}
