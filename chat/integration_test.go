package chat

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/strangerchat/chat-client/internal/protocol"
)

// matchHub is a scripted in-process matchmaker: it pairs the first two
// waiting clients, reflects messages to the whole room (sender included, as
// the real server does), relays typing to the partner, and sends system idle
// to the partner when a client leaves.
type matchHub struct {
	mu      sync.Mutex
	users   map[string]*hubUser
	waiting []string
	joins   chan string
}

type hubUser struct {
	conn    net.Conn
	avatar  string
	room    string
	partner string
}

func newMatchHub() *matchHub {
	return &matchHub{
		users: make(map[string]*hubUser),
		joins: make(chan string, 16),
	}
}

func hubSend(conn net.Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = wsutil.WriteServerMessage(conn, ws.OpText, data)
}

func (h *matchHub) join(userID, avatar string, conn net.Conn) {
	h.mu.Lock()
	h.users[userID] = &hubUser{conn: conn, avatar: avatar}
	h.waiting = append(h.waiting, userID)
	h.joins <- userID

	for _, id := range h.waiting {
		hubSend(h.users[id].conn, protocol.QueueSizeMsg{Type: protocol.TypeQueueSize, Count: len(h.waiting)})
	}

	if len(h.waiting) >= 2 {
		a, b := h.waiting[0], h.waiting[1]
		h.waiting = h.waiting[2:]
		room := "room-" + a + "-" + b
		startedAt := time.Now().UnixMilli()
		ua, ub := h.users[a], h.users[b]
		ua.room, ua.partner = room, b
		ub.room, ub.partner = room, a
		hubSend(ua.conn, protocol.PairedMsg{
			Type: protocol.TypePaired, Room: room,
			Partner: protocol.PartnerInfo{ID: b, Avatar: ub.avatar}, StartedAt: startedAt,
		})
		hubSend(ub.conn, protocol.PairedMsg{
			Type: protocol.TypePaired, Room: room,
			Partner: protocol.PartnerInfo{ID: a, Avatar: ua.avatar}, StartedAt: startedAt,
		})
	}
	h.mu.Unlock()
}

func (h *matchHub) relayMessage(from string, m protocol.ChatMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := h.users[from]
	if u == nil || u.room == "" || u.room != m.Room {
		return
	}
	// The room sees every message, the sender included.
	hubSend(u.conn, m)
	if p := h.users[u.partner]; p != nil {
		hubSend(p.conn, m)
	}
}

func (h *matchHub) relayTyping(from string, m protocol.TypingMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := h.users[from]
	if u == nil || u.room == "" || u.room != m.Room {
		return
	}
	if p := h.users[u.partner]; p != nil {
		hubSend(p.conn, m)
	}
}

func (h *matchHub) drop(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := h.users[userID]
	if u == nil {
		return
	}
	delete(h.users, userID)
	for i, id := range h.waiting {
		if id == userID {
			h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
			break
		}
	}
	if u.partner != "" {
		if p := h.users[u.partner]; p != nil {
			p.room, p.partner = "", ""
			hubSend(p.conn, protocol.SystemMsg{
				Type: protocol.TypeSystem, Code: protocol.SystemIdle, Message: "Partner left",
			})
		}
	}
}

func startMatchServer(t *testing.T, hub *matchHub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			var userID string
			defer func() {
				if userID != "" {
					hub.drop(userID)
				}
				_ = conn.Close()
			}()
			for {
				data, err := wsutil.ReadClientText(conn)
				if err != nil {
					return
				}
				var env struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(data, &env); err != nil {
					continue
				}
				switch env.Type {
				case protocol.TypeJoinQueue:
					var m protocol.JoinQueueMsg
					if err := json.Unmarshal(data, &m); err == nil {
						userID = m.UserID
						hub.join(m.UserID, m.Avatar, conn)
					}
				case protocol.TypeMessage:
					var m protocol.ChatMsg
					if err := json.Unmarshal(data, &m); err == nil {
						hub.relayMessage(userID, m)
					}
				case protocol.TypeTyping:
					var m protocol.TypingMsg
					if err := json.Unmarshal(data, &m); err == nil {
						hub.relayTyping(userID, m)
					}
				case protocol.TypeLeave:
					if userID != "" {
						hub.drop(userID)
						userID = ""
					}
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestIntegration_TwoClientsChatAndLeave(t *testing.T) {
	hub := newMatchHub()
	url := startMatchServer(t, hub)

	idA := Identity{UserID: "userA", Avatar: "🦊"}
	idB := Identity{UserID: "userB", Avatar: "🐼"}
	a := New(Config{URL: url, Identity: &idA})
	b := New(Config{URL: url, Identity: &idB})
	defer a.Leave()
	defer b.Leave()

	a.ConnectAndFind()
	waitUntil(t, "client A to reach searching", func() bool { return a.Status() == StatusSearching })
	waitUntil(t, "queue telemetry", func() bool { _, known := a.QueueSize(); return known })

	b.ConnectAndFind()
	waitUntil(t, "both clients matched", func() bool {
		return a.Status() == StatusMatched && b.Status() == StatusMatched
	})

	if p := a.Partner(); p == nil || p.ID != "userB" || p.Avatar != "🐼" {
		t.Fatalf("client A has wrong partner: %+v", p)
	}
	if p := b.Partner(); p == nil || p.ID != "userA" {
		t.Fatalf("client B has wrong partner: %+v", p)
	}
	if a.Room() == "" || a.Room() != b.Room() {
		t.Fatalf("rooms disagree: %q vs %q", a.Room(), b.Room())
	}
	if a.StartedAt() == 0 {
		t.Error("startedAt not set on pairing")
	}

	// A message travels to the partner; the echo back to the sender is
	// suppressed by the timestamp dedup all the way through the stack.
	a.SendMessage("hi")
	waitUntil(t, "client B to receive the message", func() bool { return len(b.Messages()) == 1 })

	got := b.Messages()[0]
	if got.Mine || got.Text != "hi" {
		t.Fatalf("unexpected message at B: %+v", got)
	}

	time.Sleep(100 * time.Millisecond) // give the echo time to arrive
	if n := len(a.Messages()); n != 1 {
		t.Fatalf("self-echo duplicated the message at A: %d entries", n)
	}
	if !a.Messages()[0].Mine {
		t.Error("A's own message lost its mine flag")
	}

	// Typing travels to the partner only.
	b.SendTyping(true)
	waitUntil(t, "client A to see the typing flag", func() bool { return a.Typing() })
	if b.Typing() {
		t.Error("typing flag leaked back to its sender")
	}

	// Leaving tears both sides down: A locally, B via system idle.
	a.Leave()
	if a.Status() != StatusIdle {
		t.Fatalf("expected A idle after leave, got %q", a.Status())
	}
	waitUntil(t, "client B to be sent idle", func() bool { return b.Status() == StatusIdle })
	waitUntil(t, "client B's socket to close", func() bool { return !b.SocketOpen() })

	if n := len(b.Messages()); n != 0 {
		t.Errorf("B kept %d stale messages after idle", n)
	}
}

func TestIntegration_ReconnectWhileSearchingRejoinsQueue(t *testing.T) {
	hub := newMatchHub()
	url := startMatchServer(t, hub)

	id := Identity{UserID: "solo", Avatar: "🐸"}
	s := New(Config{URL: url, Identity: &id, ReconnectDelay: 50 * time.Millisecond})
	defer s.Leave()

	s.ConnectAndFind()

	select {
	case <-hub.joins:
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw the first join_queue")
	}

	// Kill the connection server-side mid-search.
	hub.mu.Lock()
	conn := hub.users["solo"].conn
	hub.mu.Unlock()
	_ = conn.Close()

	// The client must come back on its own and re-announce itself.
	select {
	case <-hub.joins:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not rejoin the queue after the reconnect")
	}

	if s.Status() != StatusSearching {
		t.Errorf("expected searching after reconnect, got %q", s.Status())
	}
}
