package services

import (
	"encoding/json"
	"testing"
	"time"

	ws "github.com/rhetorio/backend/websocket"
)

func newHandlerTestClient(hub *ws.Hub, userID string) *ws.Client {
	return &ws.Client{
		Hub:    hub,
		Send:   make(chan []byte, 16),
		UserID: userID,
	}
}

func receiveHubEvent(t *testing.T, client *ws.Client) ws.Event {
	t.Helper()
	select {
	case data, ok := <-client.Send:
		if !ok {
			t.Fatal("send channel closed while expecting an event")
		}
		var event ws.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return ws.Event{}
	}
}

func TestLeaveKeepsConnectionUsable(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run()
	processor := NewDebateEventProcessor(hub, nil, nil, nil, nil)

	client := newHandlerTestClient(hub, "user-1")
	hub.Subscribe(client, "session-a")

	processor.HandleEvent(client, []byte(`{"type":"leave-debate"}`))

	if client.SessionID != "" {
		t.Errorf("client session after leave = %q, expected empty", client.SessionID)
	}
	if count := hub.SubscriberCount("session-a"); count != 0 {
		t.Errorf("subscriber count after leave = %d, expected 0", count)
	}

	// Further events on the same connection get a direct reply instead of
	// crashing the hub: the unjoined client is told to join first.
	processor.HandleEvent(client, []byte(`{"type":"send-message","payload":{"content":"hi"}}`))

	event := receiveHubEvent(t, client)
	if event.Type != EventError {
		t.Fatalf("event type = %s, expected %s", event.Type, EventError)
	}
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected payload shape: %T", event.Payload)
	}
	if kind := payload["kind"]; kind != string(KindValidation) {
		t.Errorf("error kind = %v, expected %s", kind, KindValidation)
	}
}

func TestAITurnWithoutDebaterPublishesUnavailable(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run()
	processor := NewDebateEventProcessor(hub, nil, nil, nil, nil)

	observer := newHandlerTestClient(hub, "user-1")
	hub.Subscribe(observer, "session-a")

	processor.respondToUser("session-a", "my opening argument")

	event := receiveHubEvent(t, observer)
	if event.Type != EventError {
		t.Fatalf("event type = %s, expected %s", event.Type, EventError)
	}
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected payload shape: %T", event.Payload)
	}
	if kind := payload["kind"]; kind != string(KindGenerationUnavailable) {
		t.Errorf("error kind = %v, expected %s", kind, KindGenerationUnavailable)
	}
}
