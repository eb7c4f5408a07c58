package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/go-stomp/stomp/v3/frame"

	"go-creator-hub/internal/event"
	"go-creator-hub/internal/realtime"
)

const contentTypeJSON = "application/json"

// publisher is satisfied by *stomp.Conn.
type publisher interface {
	Send(destination, contentType string, body []byte, opts ...func(*frame.Frame) error) error
}

// Hub relays chat events from the bus onto STOMP destinations: the
// conversation topic and the personal queue of every recipient.
type Hub struct {
	bus     event.Bus
	conn    publisher
	logger  *slog.Logger
	metrics *Metrics

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHub(bus event.Bus, conn publisher, logger *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		bus:     bus,
		conn:    conn,
		logger:  logger,
		metrics: metrics,
		stop:    make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			h.relay(e)
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) relay(e event.Event) {
	if e.Type != event.TypeMessageCreated || e.Message == nil {
		return
	}

	body, err := json.Marshal(e.Message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	destinations := make([]string, 0, len(e.Recipients)+1)
	destinations = append(destinations, realtime.ConversationTopic(e.Conversation))
	for _, recipient := range e.Recipients {
		destinations = append(destinations, realtime.UserQueue(recipient))
	}

	for _, destination := range destinations {
		if err := h.conn.Send(destination, contentTypeJSON, body); err != nil {
			h.logger.Error("failed to relay message", "destination", destination, "error", err)
			continue
		}
		h.metrics.relayed(destination)
	}
}
