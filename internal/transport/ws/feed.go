// Package ws pushes leaderboard refreshes to connected spectators. The feed
// is write-only: clients get the current board on subscribe and a new frame
// after every accepted save.
package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"blockcoder.app/internal/leaderboard"
	"blockcoder.app/internal/protocol"
)

type Feed struct {
	log      *log.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
	last []byte // latest frame, replayed to new subscribers
}

type subscriber struct {
	out chan []byte
}

func NewFeed(logger *log.Logger) *Feed {
	return &Feed{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// SubscriberCount is surfaced on /metrics.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Broadcast queues the board to every subscriber. A subscriber that cannot
// keep up has frames dropped, never the connection.
func (f *Feed) Broadcast(entries []leaderboard.Entry) {
	frame, err := protocol.EncodeLeaderboardFrame(entries)
	if err != nil {
		f.log.Printf("encode leaderboard frame: %v", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = frame
	for sub := range f.subs {
		select {
		case sub.out <- frame:
		default:
		}
	}
}

func (f *Feed) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := &subscriber{out: make(chan []byte, 8)}
		f.mu.Lock()
		if f.last != nil {
			sub.out <- f.last
		}
		f.subs[sub] = struct{}{}
		f.mu.Unlock()

		defer func() {
			f.mu.Lock()
			delete(f.subs, sub)
			f.mu.Unlock()
		}()

		done := make(chan struct{})

		// Reader exists only to notice the peer going away.
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case frame := <-sub.out:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}
}
