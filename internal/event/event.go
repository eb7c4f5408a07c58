package event

import "go-creator-hub/internal/model"

type Type string

const TypeMessageCreated Type = "message.created"

// Event is one chat change. Recipients are the user ids whose personal
// queues should see it.
type Event struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Conversation string         `json:"conversationId"`
	Recipients   []string       `json:"recipients"`
	Message      *model.Message `json:"message,omitempty"`
	Timestamp    string         `json:"timestamp"`
	ActorID      string         `json:"actorId,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
