package controllers

import (
	"net/http"
	"sync"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/peplixcoin/cmeoi-sub001/services"
	"github.com/sirupsen/logrus"
)

// StreamController turns requests into server-sent event streams of order
// documents. Each connection subscribes to one notifier channel and forwards
// the documents that pass its filter.
type StreamController struct {
	notifier   *services.Notifier
	admins     *services.AdminService
	bufferSize int
	log        logrus.FieldLogger
}

// NewStreamController creates a stream controller. bufferSize bounds the
// number of undelivered documents a connection may hold before it is dropped.
func NewStreamController(notifier *services.Notifier, admins *services.AdminService, bufferSize int, log logrus.FieldLogger) *StreamController {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &StreamController{
		notifier:   notifier,
		admins:     admins,
		bufferSize: bufferSize,
		log:        log,
	}
}

// Stream handles the fixed-filter stream endpoints such as GET /orders/approved/stream
func (sc *StreamController) Stream(kind models.Kind, filter services.Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc.serve(c, kind, filter)
	}
}

// UserStream handles GET /orders/:id/stream and GET /orders/online/:id/stream
// where :id is a username
func (sc *StreamController) UserStream(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := authorizeUsername(c)
		if !ok {
			return
		}
		sc.serve(c, kind, services.OwnedBy(username))
	}
}

// DeliveryStream handles GET /orders/online/delivery/stream - orders assigned to the caller
func (sc *StreamController) DeliveryStream(c *gin.Context) {
	agent, ok := currentAdmin(c, sc.admins)
	if !ok {
		return
	}
	sc.serve(c, models.KindOnline, services.AssignedTo(agent.ID))
}

func (sc *StreamController) serve(c *gin.Context, kind models.Kind, filter services.Filter) {
	log := sc.log.WithFields(logrus.Fields{
		"channel": kind,
		"path":    c.Request.URL.Path,
		"client":  c.ClientIP(),
	})

	events := make(chan models.Document, sc.bufferSize)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	// Runs on the publisher's goroutine: filter and enqueue, never block.
	unsubscribe := sc.notifier.Subscribe(kind, func(doc models.Document) {
		if !filter(doc) {
			return
		}
		select {
		case events <- doc:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	log.Info("stream opened")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info("stream closed by client")
			return
		case <-overflow:
			log.Warn("stream fell behind, closing connection")
			return
		case doc := <-events:
			if err := sse.Encode(c.Writer, sse.Event{Data: doc}); err != nil {
				log.WithError(err).WithField("order_id", doc.Header().OrderID).Warn("stream write failed")
				return
			}
			c.Writer.Flush()
		}
	}
}
