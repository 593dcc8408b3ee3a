package graph

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()

	s := NewServer()
	url, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start graph server: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, url
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

func TestStartIsIdempotent(t *testing.T) {
	s, url := startServer(t)

	again, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if again != url {
		t.Errorf("expected same URL, got %s and %s", url, again)
	}
}

func TestHealthz(t *testing.T) {
	_, url := startServer(t)

	resp, err := http.Get(url + "healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestClientGetsSnapshotOnConnect(t *testing.T) {
	s, url := startServer(t)

	s.Publish(Snapshot{
		Nodes: []Node{{ID: "a.wly", Label: "a.wly", Defs: 2}},
		Links: []Link{{Source: "a.wly", Target: "a.wly"}},
	})

	wsURL := "ws" + strings.TrimPrefix(url, "http") + "ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Op != "snapshot" {
		t.Fatalf("expected snapshot op, got %q", msg.Op)
	}
	if len(msg.Graph.Nodes) != 1 || msg.Graph.Nodes[0].ID != "a.wly" {
		t.Errorf("unexpected nodes %+v", msg.Graph.Nodes)
	}
}

func TestPublishBroadcasts(t *testing.T) {
	s, url := startServer(t)

	wsURL := "ws" + strings.TrimPrefix(url, "http") + "ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	// initial empty snapshot
	first := readMessage(t, conn)
	if len(first.Graph.Nodes) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", first.Graph)
	}

	s.Publish(Snapshot{
		Nodes: []Node{
			{ID: "a.wly", Label: "a.wly", Tree: "notes"},
			{ID: "b.wly", Label: "b.wly", Tree: "notes"},
		},
		Links: []Link{{Source: "b.wly", Target: "a.wly"}},
	})

	update := readMessage(t, conn)
	if len(update.Graph.Nodes) != 2 || len(update.Graph.Links) != 1 {
		t.Errorf("unexpected broadcast %+v", update.Graph)
	}
}
