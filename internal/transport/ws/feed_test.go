package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"blockcoder.app/internal/leaderboard"
	"blockcoder.app/internal/protocol"
)

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.LeaderboardFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame protocol.LeaderboardFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return frame
}

func TestFeed_BroadcastReachesSubscribers(t *testing.T) {
	feed := NewFeed(log.New(io.Discard, "", 0))
	ts := httptest.NewServer(feed.Handler())
	t.Cleanup(ts.Close)

	conn := dial(t, ts)

	// Wait for the subscription to register before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for feed.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feed.Broadcast([]leaderboard.Entry{
		{Username: "b", Currency: 200},
		{Username: "a", Currency: 50},
	})

	frame := readFrame(t, conn)
	if frame.Type != protocol.TypeLeaderboard {
		t.Fatalf("type = %q", frame.Type)
	}
	if len(frame.Leaderboard) != 2 || frame.Leaderboard[0].Username != "b" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestFeed_NewSubscriberGetsLastBoard(t *testing.T) {
	feed := NewFeed(log.New(io.Discard, "", 0))
	feed.Broadcast([]leaderboard.Entry{{Username: "a", Currency: 1}})

	ts := httptest.NewServer(feed.Handler())
	t.Cleanup(ts.Close)

	conn := dial(t, ts)
	frame := readFrame(t, conn)
	if len(frame.Leaderboard) != 1 || frame.Leaderboard[0].Username != "a" {
		t.Fatalf("replayed frame = %+v", frame)
	}
}
