package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/printlink/print-platform/internal/chat"
	"github.com/printlink/print-platform/internal/presence"
)

type capturePublisher struct {
	published []*Notification
	err       error
}

func (p *capturePublisher) PublishNotification(ctx context.Context, n *Notification) error {
	_ = ctx
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

func testSession() *chat.Session {
	return &chat.Session{
		SessionID:  "01SESSION0000000000000TEST",
		PrintJobID: "01JOB000000000000000000001",
		CustomerID: 1,
		AgentID:    2,
	}
}

func TestDispatcher_CustomerMessageTargetsAgent(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(presence.NewRegistry(nil), pub)

	sender := uint64(1)
	d.MessageSent(context.Background(), testSession(), &chat.Message{
		ID:         10,
		SessionID:  "01SESSION0000000000000TEST",
		SenderID:   &sender,
		SenderKind: chat.SenderCustomer,
		Body:       "is glossy paper available?",
	})

	if len(pub.published) != 1 {
		t.Fatalf("published %d notifications, want 1", len(pub.published))
	}
	n := pub.published[0]
	if n.RecipientID != 2 || n.RecipientKind != "agent" {
		t.Fatalf("recipient = %s:%d", n.RecipientKind, n.RecipientID)
	}
	if n.Title != "New message from customer" || n.Body != "is glossy paper available?" {
		t.Fatalf("title=%q body=%q", n.Title, n.Body)
	}
	if n.Data["chat_session_id"] != "01SESSION0000000000000TEST" || n.Data["message_id"] != "10" || n.Data["type"] != "chat_message" {
		t.Fatalf("data = %v", n.Data)
	}
}

func TestDispatcher_AgentMessageTargetsCustomer(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(presence.NewRegistry(nil), pub)

	sender := uint64(2)
	d.MessageSent(context.Background(), testSession(), &chat.Message{
		ID:         11,
		SenderID:   &sender,
		SenderKind: chat.SenderAgent,
		Body:       "ready for pickup",
	})

	if len(pub.published) != 1 {
		t.Fatalf("published %d notifications, want 1", len(pub.published))
	}
	if pub.published[0].RecipientID != 1 || pub.published[0].RecipientKind != "customer" {
		t.Fatalf("recipient = %s:%d", pub.published[0].RecipientKind, pub.published[0].RecipientID)
	}
}

func TestDispatcher_SkipsOnlineRecipient(t *testing.T) {
	reg := presence.NewRegistry(nil)
	reg.Add(context.Background(), presence.Key("agent", 2), "conn-1")

	pub := &capturePublisher{}
	d := NewDispatcher(reg, pub)

	sender := uint64(1)
	d.MessageSent(context.Background(), testSession(), &chat.Message{
		ID:         12,
		SenderID:   &sender,
		SenderKind: chat.SenderCustomer,
		Body:       "hello",
	})

	if len(pub.published) != 0 {
		t.Fatalf("published %d notifications for an online recipient", len(pub.published))
	}
}

func TestDispatcher_SystemMessagesStayInChannel(t *testing.T) {
	pub := &capturePublisher{}
	d := NewDispatcher(presence.NewRegistry(nil), pub)

	d.MessageSent(context.Background(), testSession(), &chat.Message{
		ID:         13,
		SenderKind: chat.SenderSystem,
		Body:       "This chat has been marked as completed by the print agent.",
	})

	if len(pub.published) != 0 {
		t.Fatalf("published %d notifications for a system message", len(pub.published))
	}
}

func TestDispatcher_PublishErrorIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	d := NewDispatcher(presence.NewRegistry(nil), pub)

	sender := uint64(1)
	// must not panic or surface the error
	d.MessageSent(context.Background(), testSession(), &chat.Message{
		ID:         14,
		SenderID:   &sender,
		SenderKind: chat.SenderCustomer,
		Body:       "hello",
	})
}
