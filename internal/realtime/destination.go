package realtime

// ChatSendDestination receives every outgoing chat message.
const ChatSendDestination = "/app/chat.send"

const (
	userQueuePrefix   = "/user/"
	userQueueSuffix   = "/queue/messages"
	conversationTopic = "/topic/conversation."
)

// UserQueue is the inbound queue for everything addressed to one user.
func UserQueue(userID string) string {
	return userQueuePrefix + userID + userQueueSuffix
}

func ConversationTopic(conversationID string) string {
	return conversationTopic + conversationID
}
