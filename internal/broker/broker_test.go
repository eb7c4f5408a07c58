package broker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-creator-hub/internal/event"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/realtime"
)

type fakeAuth map[string]*model.AuthClaims

func (f fakeAuth) ValidateToken(token string) (*model.AuthClaims, error) {
	claims, ok := f[token]
	if !ok {
		return nil, model.ErrUnauthorized
	}
	return claims, nil
}

type fakeChats struct {
	bus     event.Bus
	members map[string][]string

	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	senderID string
	out      model.OutgoingMessage
}

func (f *fakeChats) CanAccess(_ context.Context, userID string, conversationID string) error {
	for _, member := range f.members[conversationID] {
		if member == userID {
			return nil
		}
	}
	return model.ErrNotParticipant
}

func (f *fakeChats) Send(_ context.Context, senderID string, out model.OutgoingMessage) (model.Message, error) {
	if err := f.CanAccess(context.Background(), senderID, out.ConversationID); err != nil {
		return model.Message{}, err
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{senderID: senderID, out: out})
	f.mu.Unlock()

	msg := model.Message{
		ID:              "m-" + out.ClientMessageID,
		ConversationID:  out.ConversationID,
		SenderID:        senderID,
		Content:         out.Content,
		ClientMessageID: out.ClientMessageID,
		SentAt:          time.Now().UTC(),
	}
	if f.bus != nil {
		f.bus.Publish(event.Event{
			Type:         event.TypeMessageCreated,
			Conversation: out.ConversationID,
			Recipients:   f.members[out.ConversationID],
			Message:      &msg,
			ActorID:      senderID,
		})
	}
	return msg, nil
}

func (f *fakeChats) senders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.senderID)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testBroker struct {
	broker *Broker
	chats  *fakeChats
	url    string
}

func startBroker(t *testing.T) *testBroker {
	t.Helper()

	bus := event.NewBus(quietLogger())
	chats := &fakeChats{
		bus:     bus,
		members: map[string][]string{"c1": {"u1", "u2"}},
	}
	auth := fakeAuth{
		"token-u1": {UserID: "u1", Role: "COMPANY"},
		"token-u2": {UserID: "u2", Role: "CONTENT_CREATOR"},
		"token-u3": {UserID: "u3", Role: "COMPANY"},
	}

	b := New(Options{Auth: auth, Chats: chats, Bus: bus, Logger: quietLogger()})
	require.NoError(t, b.Start(context.Background()))

	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		srv.Close()
		_ = b.Close()
	})

	return &testBroker{
		broker: b,
		chats:  chats,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (tb *testBroker) dial(t *testing.T, token string) realtime.Transport {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialer := &realtime.StompDialer{URL: tb.url, Logger: quietLogger()}
	transport, err := dialer.Dial(ctx, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })

	return transport
}

func TestBroker_RejectsUpgradeWithoutValidToken(t *testing.T) {
	tb := startBroker(t)
	httpURL := "http" + strings.TrimPrefix(tb.url, "ws")

	resp, err := http.Get(httpURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, httpURL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer forged")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	dialer := &realtime.StompDialer{URL: tb.url}
	_, err = dialer.Dial(context.Background(), "")
	require.Error(t, err)
}

func TestBroker_RelaysChatSendToRecipientQueue(t *testing.T) {
	tb := startBroker(t)

	receiver := tb.dial(t, "token-u2")
	received := make(chan realtime.Frame, 4)
	_, err := receiver.Subscribe(realtime.UserQueue("u2"), func(f realtime.Frame) { received <- f })
	require.NoError(t, err)

	sender := tb.dial(t, "token-u1")
	body, err := json.Marshal(model.OutgoingMessage{ConversationID: "c1", Content: "hello", ClientMessageID: "k1"})
	require.NoError(t, err)

	// a client supplied sender header must not survive the proxy
	require.NoError(t, sender.Send(realtime.ChatSendDestination, body, map[string]string{
		"content-type": "application/json",
		SenderHeader:   "u2",
	}))

	select {
	case f := <-received:
		var msg model.Message
		require.NoError(t, json.Unmarshal(f.Body, &msg))
		assert.Equal(t, "c1", msg.ConversationID)
		assert.Equal(t, "u1", msg.SenderID)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "k1", msg.ClientMessageID)
	case <-time.After(5 * time.Second):
		t.Fatal("message was not relayed")
	}

	assert.Equal(t, []string{"u1"}, tb.chats.senders())
	assert.Equal(t, 2, tb.broker.Sessions())
}

func TestBroker_ClosesSessionOnForbiddenSubscribe(t *testing.T) {
	tests := []struct {
		name        string
		token       string
		destination string
	}{
		{name: "another user's queue", token: "token-u1", destination: realtime.UserQueue("u2")},
		{name: "foreign conversation", token: "token-u3", destination: realtime.ConversationTopic("c1")},
		{name: "unknown destination", token: "token-u1", destination: "/topic/everything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := startBroker(t)
			transport := tb.dial(t, tt.token)

			_, _ = transport.Subscribe(tt.destination, func(realtime.Frame) {})

			select {
			case <-transport.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("session was not closed")
			}
		})
	}
}

func TestBroker_ClosesSessionOnForbiddenSend(t *testing.T) {
	tb := startBroker(t)
	transport := tb.dial(t, "token-u1")

	_ = transport.Send(realtime.UserQueue("u2"), []byte(`{"content":"spoof"}`), map[string]string{
		"content-type": "application/json",
	})

	select {
	case <-transport.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session was not closed")
	}
	assert.Empty(t, tb.chats.senders())
}

func TestBroker_ParticipantMaySubscribeToConversation(t *testing.T) {
	tb := startBroker(t)
	transport := tb.dial(t, "token-u2")

	_, err := transport.Subscribe(realtime.ConversationTopic("c1"), func(realtime.Frame) {})
	require.NoError(t, err)

	select {
	case <-transport.Done():
		t.Fatal("participant session was closed")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?access_token=query", nil)
	assert.Equal(t, "query", bearerToken(r))

	r.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(r))
}

func TestCheckOrigin(t *testing.T) {
	b := New(Options{AllowedOrigins: []string{"http://localhost:3000"}, Logger: quietLogger()})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, b.checkOrigin(r), "non-browser clients send no origin")

	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, b.checkOrigin(r))

	r.Header.Set("Origin", "http://evil.test")
	assert.False(t, b.checkOrigin(r))
}
