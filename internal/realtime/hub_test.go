package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialRoom(t *testing.T, hub *Hub, room string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := hub.ServeWS(w, r, room); err != nil {
			t.Errorf("ServeWS: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never reached %d subscribers", room, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func TestBroadcastReachesAllRoomSubscribers(t *testing.T) {
	hub := NewHub()
	a := dialRoom(t, hub, "c1")
	b := dialRoom(t, hub, "c1")
	other := dialRoom(t, hub, "c2")
	waitForSubscribers(t, hub, "c1", 2)
	waitForSubscribers(t, hub, "c2", 1)

	hub.Broadcast(context.Background(), "c1",
		Event{Type: EventSubmissionPending, Payload: PendingPayload{ParticipantID: "p1", TaskID: 3}})

	for _, conn := range []*websocket.Conn{a, b} {
		event := readEvent(t, conn)
		if event.Type != EventSubmissionPending {
			t.Errorf("event type = %q", event.Type)
		}
	}

	// The other room must stay silent.
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("subscriber of another room received the event")
	}
}

func TestCloseRoomDeliversFinalEventAndDisconnects(t *testing.T) {
	hub := NewHub()
	conn := dialRoom(t, hub, "c1")
	waitForSubscribers(t, hub, "c1", 1)

	hub.CloseRoom(context.Background(), "c1", Event{Type: EventContestFinished})

	event := readEvent(t, conn)
	if event.Type != EventContestFinished {
		t.Fatalf("event type = %q", event.Type)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	if hub.RoomSize("c1") != 0 {
		t.Error("room not emptied after close")
	}
}

func TestDisconnectUnsubscribes(t *testing.T) {
	hub := NewHub()
	conn := dialRoom(t, hub, "c1")
	waitForSubscribers(t, hub, "c1", 1)

	conn.Close()
	waitForSubscribers(t, hub, "c1", 0)
}
