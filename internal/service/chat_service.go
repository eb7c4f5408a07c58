package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"go-creator-hub/internal/event"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/repository"
	"go-creator-hub/internal/util"
	"go-creator-hub/pkg/apierror"
)

const (
	maxMessageLength   = 4000
	defaultHistorySize = 50
)

type ChatService struct {
	chats  *repository.ChatRepository
	users  *repository.UserRepository
	bus    event.Bus
	logger *slog.Logger
}

func NewChatService(chats *repository.ChatRepository, users *repository.UserRepository, bus event.Bus, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{chats: chats, users: users, bus: bus, logger: logger.With("component", "chat")}
}

// Start opens (or returns the existing) conversation between the caller and
// participantID. Conversations only pair a company with a content creator.
func (s *ChatService) Start(ctx context.Context, claims *model.AuthClaims, participantID string) (model.Conversation, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" || participantID == claims.UserID {
		return model.Conversation{}, apierror.New(apierror.CodeBadRequest, "a different participant is required", "", http.StatusBadRequest)
	}

	other, err := s.users.FindByID(ctx, participantID)
	if err != nil {
		return model.Conversation{}, err
	}
	if other.Role == claims.Role {
		return model.Conversation{}, apierror.New(apierror.CodeForbidden, "conversations pair a company with a content creator", "", http.StatusForbidden)
	}

	conv, created := s.chats.FindOrCreate(ctx, uuid.NewString(), claims.UserID, participantID, time.Now().UTC())
	if created {
		s.logger.Info("conversation started", "conversation_id", conv.ID, "participants", conv.ParticipantIDs)
	}
	return conv, nil
}

func (s *ChatService) List(ctx context.Context, claims *model.AuthClaims) []model.Conversation {
	return s.chats.ForUser(ctx, claims.UserID)
}

func (s *ChatService) Messages(ctx context.Context, claims *model.AuthClaims, conversationID string, limit int) ([]model.Message, error) {
	if err := s.authorize(ctx, claims.UserID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultHistorySize
	}
	return s.chats.Messages(ctx, conversationID, limit)
}

func (s *ChatService) MarkRead(ctx context.Context, claims *model.AuthClaims, conversationID string) error {
	if err := s.authorize(ctx, claims.UserID, conversationID); err != nil {
		return err
	}
	return s.chats.MarkRead(ctx, conversationID, claims.UserID)
}

func (s *ChatService) Unread(ctx context.Context, claims *model.AuthClaims) model.UnreadCounts {
	return s.chats.UnreadCounts(ctx, claims.UserID)
}

// Send stores an outgoing message from senderID and announces it. A resend
// with the same client message id is acknowledged without a second event.
func (s *ChatService) Send(ctx context.Context, senderID string, out model.OutgoingMessage) (model.Message, error) {
	content, err := util.CleanText(out.Content, 0)
	if err != nil || utf8.RuneCountInString(content) > maxMessageLength {
		return model.Message{}, fmt.Errorf("message content: %w", model.ErrInvalidInput)
	}

	participants, err := s.chats.Participants(ctx, out.ConversationID)
	if err != nil {
		return model.Message{}, err
	}

	msg, duplicate, err := s.chats.Append(ctx, model.Message{
		ID:              uuid.NewString(),
		ConversationID:  out.ConversationID,
		SenderID:        senderID,
		Content:         content,
		ClientMessageID: out.ClientMessageID,
		SentAt:          time.Now().UTC(),
	})
	if err != nil {
		return model.Message{}, err
	}
	if duplicate {
		s.logger.Debug("duplicate client message ignored", "client_message_id", out.ClientMessageID)
		return msg, nil
	}

	s.bus.Publish(event.Event{
		Type:         event.TypeMessageCreated,
		Conversation: msg.ConversationID,
		Recipients:   participants,
		Message:      &msg,
		ActorID:      senderID,
	})
	return msg, nil
}

func (s *ChatService) authorize(ctx context.Context, userID string, conversationID string) error {
	participants, err := s.chats.Participants(ctx, conversationID)
	if err != nil {
		return err
	}
	if !slices.Contains(participants, userID) {
		return model.ErrNotParticipant
	}
	return nil
}

// CanAccess reports whether userID takes part in conversationID.
func (s *ChatService) CanAccess(ctx context.Context, userID string, conversationID string) error {
	return s.authorize(ctx, userID, conversationID)
}
