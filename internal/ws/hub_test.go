package ws

import (
	"encoding/json"
	"testing"

	"github.com/printlink/print-platform/internal/chat"
)

func drain(t *testing.T, c *Client) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case data := <-c.send:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHub_SessionBroadcast(t *testing.T) {
	h := NewHub()
	customer := newClient("conn-c", 1, chat.AudienceCustomer, "Casey", nil)
	agent := newClient("conn-a", 2, chat.AudienceAgent, "Print Shop", nil)
	outsider := newClient("conn-x", 3, chat.AudienceCustomer, "Other", nil)

	room := sessionRoom("01SESSION00000000000000001")
	h.join(room, customer)
	h.join(room, agent)

	h.ToSession("01SESSION00000000000000001", EvNewMessage, map[string]any{"id": 1})

	for _, c := range []*Client{customer, agent} {
		evs := drain(t, c)
		if len(evs) != 1 || evs[0].Type != EvNewMessage {
			t.Fatalf("conn %s got %v", c.ID, evs)
		}
	}
	if evs := drain(t, outsider); len(evs) != 0 {
		t.Fatalf("outsider received %d frames", len(evs))
	}
}

func TestHub_EmitExceptSkipsOrigin(t *testing.T) {
	h := NewHub()
	origin := newClient("conn-1", 1, chat.AudienceCustomer, "", nil)
	other := newClient("conn-2", 2, chat.AudienceAgent, "", nil)

	room := sessionRoom("01SESSION00000000000000002")
	h.join(room, origin)
	h.join(room, other)

	h.emit(room, EvUserTyping, typingPayload{UserID: 1, UserKind: "customer", IsTyping: true}, origin.ID)

	if evs := drain(t, origin); len(evs) != 0 {
		t.Fatalf("origin received its own event")
	}
	evs := drain(t, other)
	if len(evs) != 1 || evs[0].Type != EvUserTyping {
		t.Fatalf("other got %v", evs)
	}
	var p typingPayload
	if err := json.Unmarshal(evs[0].Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.UserID != 1 || !p.IsTyping {
		t.Fatalf("payload = %+v", p)
	}
}

func TestHub_UserRoomIsAudienceScoped(t *testing.T) {
	h := NewHub()
	asCustomer := newClient("conn-1", 5, chat.AudienceCustomer, "", nil)
	asAgent := newClient("conn-2", 5, chat.AudienceAgent, "", nil)

	h.join(userRoom(5, chat.AudienceCustomer), asCustomer)
	h.join(userRoom(5, chat.AudienceAgent), asAgent)

	h.ToUser(5, chat.AudienceAgent, EvNewChatSession, map[string]any{"session_id": "s"})

	if evs := drain(t, asCustomer); len(evs) != 0 {
		t.Fatal("customer-audience connection received an agent-room event")
	}
	if evs := drain(t, asAgent); len(evs) != 1 || evs[0].Type != EvNewChatSession {
		t.Fatalf("agent connection got %v", evs)
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := NewHub()
	c := newClient("conn-1", 1, chat.AudienceCustomer, "", nil)
	room := sessionRoom("01SESSION00000000000000003")

	h.join(room, c)
	h.leave(room, c)
	h.ToSession("01SESSION00000000000000003", EvNewMessage, nil)

	if evs := drain(t, c); len(evs) != 0 {
		t.Fatalf("left connection received %d frames", len(evs))
	}
}

func TestHub_FullBufferDropsFrame(t *testing.T) {
	h := NewHub()
	c := newClient("conn-1", 1, chat.AudienceCustomer, "", nil)
	room := sessionRoom("01SESSION00000000000000004")
	h.join(room, c)

	for i := 0; i < sendBuffer; i++ {
		if !c.enqueue([]byte("{}")) {
			t.Fatalf("buffer full after %d frames", i)
		}
	}

	// must not block
	h.ToSession("01SESSION00000000000000004", EvNewMessage, nil)

	if got := len(c.send); got != sendBuffer {
		t.Fatalf("buffered frames = %d, want %d", got, sendBuffer)
	}
}
