package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"go-creator-hub/internal/model"
	"go-creator-hub/internal/realtime"
)

var (
	ErrEmptyMessage = errors.New("message content is empty")
	ErrNoUser       = errors.New("no signed-in user")
)

// Channel is the realtime surface the inbox needs.
type Channel interface {
	Subscribe(destination string, handler realtime.Handler) (string, error)
	Unsubscribe(destination string)
	Send(destination string, payload any) error
}

// Backend is the REST surface the inbox needs; *api.Client satisfies it.
type Backend interface {
	UnreadCounts(ctx context.Context) (*model.UnreadCounts, error)
	MarkRead(ctx context.Context, conversationID string) error
	Messages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// Listener receives live messages of an open conversation.
type Listener func(model.Message)

// BadgeFunc is called with the new counts whenever they change.
type BadgeFunc func(conversationID string, unread int, total int)

// Inbox tracks unread badges from the per-user queue and feeds the open
// conversations from their topics.
type Inbox struct {
	channel Channel
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	userID  string
	unread  map[string]int
	open    map[string]Listener
	onBadge BadgeFunc
}

func NewInbox(channel Channel, backend Backend, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		channel: channel,
		backend: backend,
		logger:  logger.With("component", "chat"),
		unread:  map[string]int{},
		open:    map[string]Listener{},
	}
}

func (i *Inbox) OnBadge(fn BadgeFunc) {
	i.mu.Lock()
	i.onBadge = fn
	i.mu.Unlock()
}

// Start seeds the badges from the server and subscribes to userID's queue.
// Calling it again re-seeds and re-subscribes, which is what a fresh login
// needs.
func (i *Inbox) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}

	counts, err := i.backend.UnreadCounts(ctx)
	if err != nil {
		return fmt.Errorf("load unread counts: %w", err)
	}

	i.mu.Lock()
	previous := i.userID
	i.userID = userID
	i.unread = make(map[string]int, len(counts.ByConversation))
	for id, n := range counts.ByConversation {
		if n > 0 {
			i.unread[id] = n
		}
	}
	i.mu.Unlock()

	if previous != "" && previous != userID {
		i.channel.Unsubscribe(realtime.UserQueue(previous))
	}

	if _, err := i.channel.Subscribe(realtime.UserQueue(userID), i.handleUserMessage); err != nil {
		return fmt.Errorf("subscribe user queue: %w", err)
	}

	i.logger.Info("inbox started", "user_id", userID, "unread", counts.Total)
	return nil
}

// Stop drops every subscription the inbox holds and forgets the badges.
func (i *Inbox) Stop() {
	i.mu.Lock()
	userID := i.userID
	open := make([]string, 0, len(i.open))
	for id := range i.open {
		open = append(open, id)
	}
	i.userID = ""
	i.unread = map[string]int{}
	i.open = map[string]Listener{}
	i.mu.Unlock()

	if userID != "" {
		i.channel.Unsubscribe(realtime.UserQueue(userID))
	}
	for _, id := range open {
		i.channel.Unsubscribe(realtime.ConversationTopic(id))
	}
}

// Open subscribes to a conversation, marks it read and returns its recent
// history. Live messages go to listener until Close.
func (i *Inbox) Open(ctx context.Context, conversationID string, historyLimit int, listener Listener) ([]model.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id: %w", model.ErrInvalidInput)
	}

	i.mu.Lock()
	i.open[conversationID] = listener
	i.mu.Unlock()

	handler := func(msg realtime.Message) { i.handleConversationMessage(conversationID, msg) }
	if _, err := i.channel.Subscribe(realtime.ConversationTopic(conversationID), handler); err != nil {
		i.mu.Lock()
		delete(i.open, conversationID)
		i.mu.Unlock()
		return nil, fmt.Errorf("subscribe conversation: %w", err)
	}

	history, err := i.backend.Messages(ctx, conversationID, historyLimit)
	if err != nil {
		i.Close(conversationID)
		return nil, fmt.Errorf("load history: %w", err)
	}

	i.markRead(ctx, conversationID)

	return history, nil
}

func (i *Inbox) Close(conversationID string) {
	i.mu.Lock()
	_, ok := i.open[conversationID]
	delete(i.open, conversationID)
	i.mu.Unlock()

	if ok {
		i.channel.Unsubscribe(realtime.ConversationTopic(conversationID))
	}
}

// Send publishes content to a conversation and returns the client message
// id the echo will carry. It fails with realtime.ErrNotConnected when the
// channel is down; nothing is queued.
func (i *Inbox) Send(conversationID string, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if conversationID == "" {
		return "", fmt.Errorf("conversation id: %w", model.ErrInvalidInput)
	}

	out := model.OutgoingMessage{
		ConversationID:  conversationID,
		Content:         content,
		ClientMessageID: uuid.NewString(),
	}
	if err := i.channel.Send(realtime.ChatSendDestination, out); err != nil {
		return "", err
	}

	return out.ClientMessageID, nil
}

func (i *Inbox) Unread(conversationID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unread[conversationID]
}

func (i *Inbox) TotalUnread() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.totalLocked()
}

func (i *Inbox) handleUserMessage(msg realtime.Message) {
	var m model.Message
	if err := msg.Decode(&m); err != nil || m.ConversationID == "" {
		i.logger.Warn("ignoring unreadable inbox message", "destination", msg.Destination, "error", err)
		return
	}

	i.mu.Lock()
	if _, open := i.open[m.ConversationID]; open || m.SenderID == i.userID {
		// The conversation topic delivers it.
		i.mu.Unlock()
		return
	}
	i.unread[m.ConversationID]++
	n, total, badge := i.unread[m.ConversationID], i.totalLocked(), i.onBadge
	i.mu.Unlock()

	if badge != nil {
		badge(m.ConversationID, n, total)
	}
}

func (i *Inbox) handleConversationMessage(conversationID string, msg realtime.Message) {
	var m model.Message
	if err := msg.Decode(&m); err != nil {
		i.logger.Warn("ignoring unreadable conversation message", "conversation_id", conversationID, "error", err)
		return
	}
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}

	i.mu.Lock()
	listener, open := i.open[conversationID]
	self := m.SenderID == i.userID
	i.mu.Unlock()

	if !open {
		return
	}
	if listener != nil {
		listener(m)
	}
	if !self {
		i.markRead(context.Background(), conversationID)
	}
}

func (i *Inbox) markRead(ctx context.Context, conversationID string) {
	if err := i.backend.MarkRead(ctx, conversationID); err != nil {
		i.logger.Warn("mark read failed", "conversation_id", conversationID, "error", err)
	}

	i.mu.Lock()
	had := i.unread[conversationID]
	delete(i.unread, conversationID)
	total, badge := i.totalLocked(), i.onBadge
	i.mu.Unlock()

	if had > 0 && badge != nil {
		badge(conversationID, 0, total)
	}
}

func (i *Inbox) totalLocked() int {
	total := 0
	for _, n := range i.unread {
		total += n
	}
	return total
}
