package broker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-stomp/stomp/v3"

	"go-creator-hub/internal/model"
)

// consumer turns frames published to the chat send destination into
// persisted messages.
type consumer struct {
	chats   Chats
	logger  *slog.Logger
	metrics *Metrics
}

func (c *consumer) run(ctx context.Context, sub *stomp.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if msg.Err != nil {
				c.logger.Debug("chat send subscription ended", "error", msg.Err)
				return
			}
			c.handle(ctx, msg.Header.Get(SenderHeader), msg.Body)
		}
	}
}

func (c *consumer) handle(ctx context.Context, senderID string, body []byte) {
	if senderID == "" {
		c.metrics.rejected("anonymous")
		c.logger.Warn("chat send without sender dropped")
		return
	}

	var out model.OutgoingMessage
	if err := json.Unmarshal(body, &out); err != nil {
		c.metrics.rejected("malformed")
		c.logger.Warn("malformed chat send dropped", "sender_id", senderID, "error", err)
		return
	}

	msg, err := c.chats.Send(ctx, senderID, out)
	if err != nil {
		c.metrics.rejected("chat")
		c.logger.Warn("chat send refused",
			"sender_id", senderID,
			"conversation_id", out.ConversationID,
			"error", err,
		)
		return
	}

	c.logger.Debug("chat message stored", "message_id", msg.ID, "conversation_id", msg.ConversationID)
}
