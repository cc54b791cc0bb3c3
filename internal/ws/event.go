package ws

import "encoding/json"

// Event is the wire frame in both directions: a type tag and a payload.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client -> server event types.
const (
	evJoinChat    = "join_chat"
	evLeaveChat   = "leave_chat"
	evSendMessage = "send_message"
	evTypingStart = "typing_start"
	evTypingStop  = "typing_stop"
	evMarkRead    = "mark_messages_read"
)

// Server -> client event types.
const (
	EvChatJoined     = "chat_joined"
	EvUserOnline     = "user_online"
	EvUserOffline    = "user_offline"
	EvNewMessage     = "new_message"
	EvUserTyping     = "user_typing"
	EvMessagesRead   = "messages_read"
	EvChatCompleted  = "chat_completed"
	EvNewChatSession = "new_chat_session"
	EvError          = "error"
)

type sessionPayload struct {
	SessionID string `json:"session_id"`
}

type sendPayload struct {
	SessionID string `json:"session_id"`
	Body      string `json:"body"`
	Kind      string `json:"kind,omitempty"`
}

type presencePayload struct {
	UserID   uint64 `json:"user_id"`
	UserKind string `json:"user_kind"`
}

type typingPayload struct {
	UserID   uint64 `json:"user_id"`
	UserKind string `json:"user_kind"`
	IsTyping bool   `json:"is_typing"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func encodeEvent(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, Payload: raw})
}
