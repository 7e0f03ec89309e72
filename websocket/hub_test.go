package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(hub *Hub, userID string) *Client {
	return &Client{
		Hub:    hub,
		Send:   make(chan []byte, 16),
		UserID: userID,
	}
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case data, ok := <-client.Send:
		if !ok {
			t.Fatal("send channel closed while expecting an event")
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, sessionID string, count int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(sessionID) == count {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("subscriber count for %s never reached %d", sessionID, count)
}

func TestPublishReachesSessionSubscribersOnly(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	inSession := newTestClient(hub, "user-1")
	alsoInSession := newTestClient(hub, "user-2")
	otherSession := newTestClient(hub, "user-3")

	hub.Subscribe(inSession, "session-a")
	hub.Subscribe(alsoInSession, "session-a")
	hub.Subscribe(otherSession, "session-b")
	waitForSubscribers(t, hub, "session-a", 2)
	waitForSubscribers(t, hub, "session-b", 1)

	hub.Publish("session-a", "new-message", map[string]string{"content": "hello"})

	for _, client := range []*Client{inSession, alsoInSession} {
		event := receiveEvent(t, client)
		if event.Type != "new-message" {
			t.Errorf("event type = %s, expected new-message", event.Type)
		}
		if event.SessionID != "session-a" {
			t.Errorf("event session = %s, expected session-a", event.SessionID)
		}
	}

	select {
	case data := <-otherSession.Send:
		t.Errorf("client in another session received event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, "user-1")
	hub.Subscribe(client, "session-a")
	waitForSubscribers(t, hub, "session-a", 1)

	for i := 0; i < 5; i++ {
		hub.Publish("session-a", "new-message", map[string]int{"seq": i})
	}

	for i := 0; i < 5; i++ {
		event := receiveEvent(t, client)
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			t.Fatalf("unexpected payload shape: %T", event.Payload)
		}
		if seq := int(payload["seq"].(float64)); seq != i {
			t.Fatalf("event %d arrived with seq %d, expected in-order delivery", i, seq)
		}
	}
}

func TestUnsubscribeLeavesConnectionOpen(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, "user-1")
	hub.Subscribe(client, "session-a")
	waitForSubscribers(t, hub, "session-a", 1)

	hub.Unsubscribe(client)
	waitForSubscribers(t, hub, "session-a", 0)

	// Direct replies still reach the connection after leaving a session.
	hub.SendTo(client, "error", map[string]string{"kind": "conflict"})
	event := receiveEvent(t, client)
	if event.Type != "error" {
		t.Errorf("event type = %s, expected error", event.Type)
	}

	// The client can join another session on the same connection.
	hub.Subscribe(client, "session-b")
	waitForSubscribers(t, hub, "session-b", 1)
	hub.Publish("session-b", "new-message", map[string]string{"content": "hello"})
	event = receiveEvent(t, client)
	if event.Type != "new-message" {
		t.Errorf("event type = %s, expected new-message", event.Type)
	}
}

func TestDisconnectClosesSendAndDropsSession(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, "user-1")
	hub.Subscribe(client, "session-a")
	waitForSubscribers(t, hub, "session-a", 1)

	hub.Disconnect(client)
	waitForSubscribers(t, hub, "session-a", 0)

	select {
	case _, ok := <-client.Send:
		if ok {
			t.Error("expected closed send channel, got event")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after disconnect")
	}

	// A stray direct reply to a disconnected client is dropped, not a panic.
	hub.SendTo(client, "error", map[string]string{"kind": "validation_error"})
}

func TestSendToTargetsOneClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	target := newTestClient(hub, "user-1")
	bystander := newTestClient(hub, "user-2")
	hub.Subscribe(target, "session-a")
	hub.Subscribe(bystander, "session-a")
	waitForSubscribers(t, hub, "session-a", 2)

	hub.SendTo(target, "error", map[string]string{"kind": "validation_error"})

	event := receiveEvent(t, target)
	if event.Type != "error" {
		t.Errorf("event type = %s, expected error", event.Type)
	}

	select {
	case data := <-bystander.Send:
		t.Errorf("bystander received direct event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}
