package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-creator-hub/internal/event"
	"go-creator-hub/internal/model"
)

type recordingPublisher struct {
	mu    sync.Mutex
	sends map[string][]byte
	order []string
}

func (p *recordingPublisher) Send(destination, contentType string, body []byte, _ ...func(*frame.Frame) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sends == nil {
		p.sends = map[string][]byte{}
	}
	p.sends[destination] = body
	p.order = append(p.order, destination)
	return nil
}

func (p *recordingPublisher) destinations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func TestHub_RelayFansOutToTopicAndQueues(t *testing.T) {
	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	hub := NewHub(event.NewBus(quietLogger()), pub, quietLogger(), metrics)

	msg := &model.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi"}
	hub.relay(event.Event{
		Type:         event.TypeMessageCreated,
		Conversation: "c1",
		Recipients:   []string{"u1", "u2"},
		Message:      msg,
	})

	assert.Equal(t, []string{
		"/topic/conversation.c1",
		"/user/u1/queue/messages",
		"/user/u2/queue/messages",
	}, pub.destinations())

	var decoded model.Message
	require.NoError(t, json.Unmarshal(pub.sends["/user/u2/queue/messages"], &decoded))
	assert.Equal(t, *msg, decoded)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.relays.WithLabelValues("topic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.relays.WithLabelValues("queue")))
}

func TestHub_IgnoresEventsWithoutMessage(t *testing.T) {
	pub := &recordingPublisher{}
	hub := NewHub(event.NewBus(quietLogger()), pub, quietLogger(), nil)

	hub.relay(event.Event{Type: event.TypeMessageCreated, Conversation: "c1"})
	hub.relay(event.Event{Type: "something.else", Message: &model.Message{}})

	assert.Empty(t, pub.destinations())
}

func TestHub_RunForwardsBusEventsUntilStopped(t *testing.T) {
	bus := event.NewBus(quietLogger())
	pub := &recordingPublisher{}
	hub := NewHub(bus, pub, quietLogger(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(context.Background())
	}()

	assert.Eventually(t, func() bool {
		bus.Publish(event.Event{
			Type:         event.TypeMessageCreated,
			Conversation: "c9",
			Message:      &model.Message{ID: "m9", ConversationID: "c9"},
		})
		return len(pub.destinations()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestConsumer_Handle(t *testing.T) {
	chats := &fakeChats{members: map[string][]string{"c1": {"u1", "u2"}}}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := &consumer{chats: chats, logger: quietLogger(), metrics: metrics}
	ctx := context.Background()

	c.handle(ctx, "", []byte(`{"conversationId":"c1","content":"x"}`))
	c.handle(ctx, "u1", []byte(`not json`))
	c.handle(ctx, "u3", []byte(`{"conversationId":"c1","content":"x"}`))
	c.handle(ctx, "u1", []byte(`{"conversationId":"c1","content":"x","clientMessageId":"k"}`))

	assert.Equal(t, []string{"u1"}, chats.senders())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejects.WithLabelValues("anonymous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejects.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejects.WithLabelValues("chat")))
}

func TestProxy_Check(t *testing.T) {
	chats := &fakeChats{members: map[string][]string{"c1": {"u1", "u2"}}}
	p := &proxy{claims: &model.AuthClaims{UserID: "u1"}, chats: chats, logger: quietLogger()}

	t.Run("send to chat destination stamps the sender", func(t *testing.T) {
		f := frame.New(frame.SEND, frame.Destination, "/app/chat.send", SenderHeader, "u2")
		require.NoError(t, p.check(f))
		assert.Equal(t, "u1", f.Header.Get(SenderHeader))
	})

	t.Run("send elsewhere is rejected", func(t *testing.T) {
		f := frame.New(frame.SEND, frame.Destination, "/topic/conversation.c1")
		assert.ErrorIs(t, p.check(f), errFrameRejected)
	})

	t.Run("subscriptions", func(t *testing.T) {
		cases := map[string]bool{
			"/user/u1/queue/messages": true,
			"/user/u2/queue/messages": false,
			"/topic/conversation.c1":  true,
			"/topic/conversation.c2":  false,
			"/topic/conversation.":    false,
			"/app/chat.send":          false,
		}
		for destination, allowed := range cases {
			err := p.check(frame.New(frame.SUBSCRIBE, frame.Destination, destination, frame.Id, "s1"))
			if allowed {
				assert.NoError(t, err, destination)
			} else {
				assert.ErrorIs(t, err, errFrameRejected, destination)
			}
		}
	})

	t.Run("other commands pass", func(t *testing.T) {
		assert.NoError(t, p.check(frame.New(frame.UNSUBSCRIBE, frame.Id, "s1")))
		assert.NoError(t, p.check(frame.New(frame.DISCONNECT, frame.Receipt, "r1")))
	})
}
