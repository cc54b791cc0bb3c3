package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ExpoClient talks to the Expo push gateway.
type ExpoClient struct {
	URL    string
	Client *http.Client
}

func NewExpoClient(url string) *ExpoClient {
	if url == "" {
		url = "https://exp.host/--/api/v2/push/send"
	}
	return &ExpoClient{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Expo accepts at most 100 notifications per request.
const expoBatchSize = 100

type PushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Badge int               `json:"badge,omitempty"`
}

type PushTicket struct {
	Status  string `json:"status"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoPushResp struct {
	Data []PushTicket `json:"data"`
}

// Send posts one batch and returns per-message tickets in request order.
func (c *ExpoClient) Send(ctx context.Context, msgs []PushMessage) ([]PushTicket, error) {
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expo push: status %d", resp.StatusCode)
	}

	var out expoPushResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Sender delivers a queued notification to every registered endpoint of the
// recipient and prunes endpoints the provider reports dead.
type Sender struct {
	client *ExpoClient
	tokens *TokenStore
}

func NewSender(client *ExpoClient, tokens *TokenStore) *Sender {
	return &Sender{client: client, tokens: tokens}
}

func (s *Sender) Deliver(ctx context.Context, n *Notification) error {
	tokens, err := s.tokens.ActiveTokens(ctx, n.RecipientID, n.RecipientKind)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	for start := 0; start < len(tokens); start += expoBatchSize {
		end := start + expoBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		msgs := make([]PushMessage, 0, len(batch))
		for _, t := range batch {
			msgs = append(msgs, PushMessage{
				To:    t.Token,
				Title: n.Title,
				Body:  n.Body,
				Data:  n.Data,
				Sound: "default",
				Badge: 1,
			})
		}

		tickets, err := s.client.Send(ctx, msgs)
		if err != nil {
			log.Printf("notify: expo send batch: %v", err)
			continue
		}

		// Tickets come back in request order; prune endpoints the provider
		// says are gone. Best-effort only.
		for i, ticket := range tickets {
			if i >= len(batch) {
				break
			}
			if ticket.Status != "error" {
				continue
			}
			switch ticket.Details.Error {
			case "DeviceNotRegistered", "InvalidCredentials":
				if err := s.tokens.Deactivate(ctx, batch[i].Token); err != nil {
					log.Printf("notify: deactivate token: %v", err)
				}
			}
		}
	}
	return nil
}
