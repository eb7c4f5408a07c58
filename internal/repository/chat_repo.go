package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go-creator-hub/internal/model"
)

type conversation struct {
	model.Conversation
	messages []model.Message
	// unread per participant
	unread map[string]int
}

// ChatRepository stores two-party conversations, their messages and each
// participant's unread count.
type ChatRepository struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	byPair        map[[2]string]string
	seenClientIDs map[string]model.Message
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		conversations: map[string]*conversation{},
		byPair:        map[[2]string]string{},
		seenClientIDs: map[string]model.Message{},
	}
}

// FindOrCreate returns the conversation between a and b, creating it with id
// when none exists. created reports which happened.
func (r *ChatRepository) FindOrCreate(_ context.Context, id string, a string, b string, now time.Time) (model.Conversation, bool) {
	key := pairKey(a, b)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byPair[key]; ok {
		conv := r.conversations[existing].Conversation
		conv.ParticipantIDs = slices.Clone(conv.ParticipantIDs)
		return conv, false
	}

	c := &conversation{
		Conversation: model.Conversation{ID: id, ParticipantIDs: []string{key[0], key[1]}, UpdatedAt: now},
		unread:       map[string]int{},
	}
	r.conversations[id] = c
	r.byPair[key] = id
	conv := c.Conversation
	conv.ParticipantIDs = slices.Clone(conv.ParticipantIDs)
	return conv, true
}

func (r *ChatRepository) Participants(_ context.Context, conversationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, model.ErrConversationNotFound
	}
	return slices.Clone(c.ParticipantIDs), nil
}

// Append stores m and bumps the unread count of every participant but the
// sender. A repeated client message id from the same sender returns the
// stored message with duplicate set.
func (r *ChatRepository) Append(_ context.Context, m model.Message) (model.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[m.ConversationID]
	if !ok {
		return model.Message{}, false, model.ErrConversationNotFound
	}
	if !slices.Contains(c.ParticipantIDs, m.SenderID) {
		return model.Message{}, false, model.ErrNotParticipant
	}

	if m.ClientMessageID != "" {
		dedupe := m.SenderID + "/" + m.ClientMessageID
		if prev, seen := r.seenClientIDs[dedupe]; seen {
			return prev, true, nil
		}
		r.seenClientIDs[dedupe] = m
	}

	c.messages = append(c.messages, m)
	last := m
	c.LastMessage = &last
	c.UpdatedAt = m.SentAt
	for _, p := range c.ParticipantIDs {
		if p != m.SenderID {
			c.unread[p]++
		}
	}

	return m, false, nil
}

// Messages returns up to limit newest messages, oldest first.
func (r *ChatRepository) Messages(_ context.Context, conversationID string, limit int) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, model.ErrConversationNotFound
	}

	msgs := c.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

func (r *ChatRepository) MarkRead(_ context.Context, conversationID string, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return model.ErrConversationNotFound
	}
	delete(c.unread, userID)
	return nil
}

// ForUser lists the user's conversations, most recently active first, with
// the user's unread count filled in.
func (r *ChatRepository) ForUser(_ context.Context, userID string) []model.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Conversation, 0)
	for _, c := range r.conversations {
		if !slices.Contains(c.ParticipantIDs, userID) {
			continue
		}
		conv := c.Conversation
		conv.ParticipantIDs = slices.Clone(c.ParticipantIDs)
		conv.UnreadCount = c.unread[userID]
		out = append(out, conv)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (r *ChatRepository) UnreadCounts(_ context.Context, userID string) model.UnreadCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := model.UnreadCounts{ByConversation: map[string]int{}}
	for id, c := range r.conversations {
		if n := c.unread[userID]; n > 0 {
			counts.ByConversation[id] = n
			counts.Total += n
		}
	}
	return counts
}

func pairKey(a string, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
