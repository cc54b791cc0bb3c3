package notify

import (
	"context"
	"log"
	"strconv"

	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/presence"
)

// Notification is the queued unit of work: one push to one recipient about
// one chat message.
type Notification struct {
	RecipientID   uint64            `json:"recipient_id"`
	RecipientKind string            `json:"recipient_kind"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Data          map[string]string `json:"data,omitempty"`
}

// Publisher enqueues a notification for asynchronous delivery.
type Publisher interface {
	PublishNotification(ctx context.Context, n *Notification) error
}

// Dispatcher decides, per message, whether the recipient needs an external
// push: participants with a live connection get the in-channel broadcast
// instead. Publish failures are logged and swallowed; they never reach the
// message-send path.
type Dispatcher struct {
	registry *presence.Registry
	pub      Publisher
}

func NewDispatcher(registry *presence.Registry, pub Publisher) *Dispatcher {
	return &Dispatcher{registry: registry, pub: pub}
}

// MessageSent implements chat.Notifier.
func (d *Dispatcher) MessageSent(ctx context.Context, s *chat.Session, m *chat.Message) {
	var recipientID uint64
	var recipientKind chat.Audience
	var title string

	switch m.SenderKind {
	case chat.SenderCustomer:
		recipientID = s.AgentID
		recipientKind = chat.AudienceAgent
		title = "New message from customer"
	case chat.SenderAgent:
		recipientID = s.CustomerID
		recipientKind = chat.AudienceCustomer
		title = "New message from print agent"
	default:
		// System content is delivered in-channel only.
		return
	}

	if d.registry.IsOnline(presence.Key(string(recipientKind), recipientID)) {
		return
	}

	n := &Notification{
		RecipientID:   recipientID,
		RecipientKind: string(recipientKind),
		Title:         title,
		Body:          m.Body,
		Data: map[string]string{
			"chat_session_id": s.SessionID,
			"message_id":      strconv.FormatUint(m.ID, 10),
			"type":            "chat_message",
		},
	}
	if err := d.pub.PublishNotification(ctx, n); err != nil {
		log.Printf("notify: publish session=%s message=%d: %v", s.SessionID, m.ID, err)
	}
}
