package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func expoStub(t *testing.T, statusFor func(to string) PushTicket) (*httptest.Server, *[][]PushMessage) {
	t.Helper()
	var batches [][]PushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msgs []PushMessage
		if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
			t.Errorf("decode push batch: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		batches = append(batches, msgs)

		tickets := make([]PushTicket, len(msgs))
		for i, m := range msgs {
			tickets[i] = statusFor(m.To)
		}
		json.NewEncoder(w).Encode(expoPushResp{Data: tickets})
	}))
	t.Cleanup(srv.Close)
	return srv, &batches
}

func TestSender_DeliverPushesEachToken(t *testing.T) {
	srv, batches := expoStub(t, func(string) PushTicket {
		return PushTicket{Status: "ok"}
	})

	store := NewTokenStore(openTestDB(t))
	ctx := context.Background()
	if _, err := store.Register(ctx, 1, "customer", "ExponentPushToken[one]", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.Register(ctx, 1, "customer", "ExponentPushToken[two]", "android"); err != nil {
		t.Fatalf("register: %v", err)
	}

	s := NewSender(NewExpoClient(srv.URL), store)
	err := s.Deliver(ctx, &Notification{
		RecipientID:   1,
		RecipientKind: "customer",
		Title:         "New message from print agent",
		Body:          "ready for pickup",
		Data:          map[string]string{"type": "chat_message"},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(*batches) != 1 || len((*batches)[0]) != 2 {
		t.Fatalf("batches = %v", *batches)
	}
	msg := (*batches)[0][0]
	if msg.Title != "New message from print agent" || msg.Sound != "default" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestSender_DeliverNoTokensIsNoop(t *testing.T) {
	srv, batches := expoStub(t, func(string) PushTicket {
		return PushTicket{Status: "ok"}
	})

	s := NewSender(NewExpoClient(srv.URL), NewTokenStore(openTestDB(t)))
	if err := s.Deliver(context.Background(), &Notification{RecipientID: 9, RecipientKind: "agent"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(*batches) != 0 {
		t.Fatalf("pushed %d batches without any registered token", len(*batches))
	}
}

func TestSender_PrunesDeadTokens(t *testing.T) {
	srv, _ := expoStub(t, func(to string) PushTicket {
		if to == "ExponentPushToken[dead]" {
			tk := PushTicket{Status: "error"}
			tk.Details.Error = "DeviceNotRegistered"
			return tk
		}
		return PushTicket{Status: "ok"}
	})

	store := NewTokenStore(openTestDB(t))
	ctx := context.Background()
	if _, err := store.Register(ctx, 1, "customer", "ExponentPushToken[dead]", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.Register(ctx, 1, "customer", "ExponentPushToken[live]", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}

	s := NewSender(NewExpoClient(srv.URL), store)
	if err := s.Deliver(ctx, &Notification{RecipientID: 1, RecipientKind: "customer", Title: "t", Body: "b"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	tokens, err := store.ActiveTokens(ctx, 1, "customer")
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != "ExponentPushToken[live]" {
		t.Fatalf("surviving tokens = %+v", tokens)
	}
}
