// Package chat implements the client-side session core for the stranger-chat
// service. A Session owns the lifecycle of the single WebSocket connection,
// interprets server events into state transitions, reconciles optimistic
// local sends against server echoes, and exposes the small set of intent
// operations a UI layer calls. The UI observes state through the accessors
// and the OnChange hook; no operation here returns an error to its caller.
package chat

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/strangerchat/chat-client/internal/metrics"
	"github.com/strangerchat/chat-client/internal/protocol"
	"github.com/strangerchat/chat-client/internal/transport"
)

// Status is the controlling state of the session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusMatched   Status = "matched"
)

// Partner identifies the remote participant of the current room.
type Partner struct {
	ID     string
	Avatar string
}

// Transport is the seam between the session and the connection manager. The
// session never touches the raw socket; it only opens, sends, and closes
// through this interface.
type Transport interface {
	Open(url string)
	Send(v interface{})
	Close()
}

// Config controls a Session.
type Config struct {
	URL string // WebSocket endpoint, e.g. ws://localhost:8000/ws

	// Identity is the client identity to announce when joining the queue.
	// Generated lazily when nil.
	Identity *Identity

	// TypingTTL bounds the lifetime of the partner-is-typing flag absent
	// refreshing events. Defaults to 2 seconds.
	TypingTTL time.Duration

	DialTimeout    time.Duration // passed through to the connection manager
	ReconnectDelay time.Duration // passed through to the connection manager

	// OnChange, when set, is invoked after every state transition. It runs
	// without internal locks held; read the new state through the accessors.
	OnChange func()

	// Now returns the current time in milliseconds since the epoch. It
	// exists for tests; nil means the wall clock.
	Now func() int64
}

// Session is the client-side state machine: idle -> searching -> matched,
// back to searching on "next" or to idle on "leave" or a server-driven idle.
// Events arrive from the transport's read goroutine, from timers, and from
// intent callers; a single mutex serializes them, and every transition runs
// to completion before the next one starts.
type Session struct {
	cfg      Config
	identity Identity
	conn     Transport

	mu         sync.Mutex
	status     Status
	socketOpen bool
	wantSearch bool // a find intent is waiting for the socket to open
	room       string
	partner    *Partner
	startedAt  int64
	msgs       messageLog
	lastSentAt int64
	typing     bool
	typingGen  uint64 // invalidates superseded auto-clear timers
	typingTmr  *time.Timer
	queueSize  int
	queueKnown bool
}

// New creates a Session wired to a real WebSocket connection manager. The
// connection is not opened until the first ConnectAndFind.
func New(cfg Config) *Session {
	s := newSession(cfg, nil)

	tcfg := transport.DefaultConfig()
	if cfg.DialTimeout > 0 {
		tcfg.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReconnectDelay > 0 {
		tcfg.ReconnectDelay = cfg.ReconnectDelay
	}
	s.conn = transport.NewManager(tcfg, transport.Callbacks{
		OnOpen:          s.handleOpen,
		OnMessage:       s.handleServerEvent,
		OnClose:         s.handleClosed,
		ShouldReconnect: s.shouldReconnect,
	})
	return s
}

// newSession builds the state machine without a transport; tests inject a
// fake through the returned session's conn field.
func newSession(cfg Config, conn Transport) *Session {
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 2 * time.Second
	}
	identity := NewIdentity()
	if cfg.Identity != nil {
		identity = *cfg.Identity
	}
	return &Session{
		cfg:      cfg,
		identity: identity,
		conn:     conn,
		status:   StatusIdle,
	}
}

// ---------------------------------------------------------------------------
// Intents
// ---------------------------------------------------------------------------

// ConnectAndFind opens the connection if needed and joins the matchmaking
// queue. With an already-open socket the join is sent immediately; otherwise
// it is sent from the open callback.
func (s *Session) ConnectAndFind() {
	s.mu.Lock()
	if s.socketOpen {
		s.clearRoomLocked()
		s.status = StatusSearching
		ev := protocol.NewJoinQueue(s.identity.UserID, s.identity.Avatar)
		s.mu.Unlock()
		s.conn.Send(ev)
		s.notify()
		return
	}
	s.wantSearch = true
	url := s.cfg.URL
	s.mu.Unlock()

	s.conn.Open(url)
}

// SendMessage transmits text to the current room and optimistically appends
// it to the local log. It is a no-op when the text fails validation, the
// connection is closed, or no room is active.
func (s *Session) SendMessage(text string) {
	text = strings.TrimSpace(text)
	if err := ValidateMessage(text); err != nil {
		if text != "" {
			log.Printf("chat: rejecting outbound message: %v", err)
		}
		return
	}

	s.mu.Lock()
	if !s.socketOpen || s.room == "" {
		s.mu.Unlock()
		return
	}
	sentAt := s.nextSentAtLocked()
	s.msgs.appendLocal(text, sentAt)
	ev := protocol.NewChatMsg(s.room, text, sentAt)
	s.mu.Unlock()

	s.conn.Send(ev)
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	s.notify()
}

// SendTyping transmits the local typing state to the current room. It is a
// no-op when the connection is closed or no room is active. Callers should
// route keystroke-level intents through a TypingNotifier rather than calling
// this directly.
func (s *Session) SendTyping(isTyping bool) {
	s.mu.Lock()
	if !s.socketOpen || s.room == "" {
		s.mu.Unlock()
		return
	}
	ev := protocol.NewTypingMsg(s.room, isTyping)
	s.mu.Unlock()

	s.conn.Send(ev)
	metrics.TypingEventsTotal.WithLabelValues("sent").Inc()
}

// Next abandons the current room and asks the server for a new partner. The
// local state moves to searching immediately.
func (s *Session) Next() {
	s.mu.Lock()
	if !s.socketOpen {
		s.mu.Unlock()
		return
	}
	s.clearRoomLocked()
	s.status = StatusSearching
	s.mu.Unlock()

	s.conn.Send(protocol.NewNext())
	s.notify()
}

// Leave tells the server we are gone, closes the connection, and returns the
// session to idle. Closing also cancels any pending reconnect, so a stray
// late close event cannot resurrect the connection.
func (s *Session) Leave() {
	s.mu.Lock()
	open := s.socketOpen
	s.wantSearch = false
	s.clearRoomLocked()
	s.status = StatusIdle
	s.mu.Unlock()

	if open {
		s.conn.Send(protocol.NewLeave())
	}
	s.conn.Close()
	s.notify()
}

// React attaches a reaction glyph to a message in the current log. It is
// client-local state; nothing goes over the wire. Returns false if the
// message is not in the log.
func (s *Session) React(messageID, glyph string) bool {
	s.mu.Lock()
	ok := s.msgs.react(messageID, glyph)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// ---------------------------------------------------------------------------
// Transport callbacks
// ---------------------------------------------------------------------------

func (s *Session) handleOpen() {
	s.mu.Lock()
	s.socketOpen = true
	if s.wantSearch || s.status == StatusSearching {
		// Either the first find intent or a reconnect mid-search; both
		// re-announce the identity to the queue.
		s.wantSearch = false
		s.clearRoomLocked()
		s.status = StatusSearching
		ev := protocol.NewJoinQueue(s.identity.UserID, s.identity.Avatar)
		s.mu.Unlock()
		s.conn.Send(ev)
		s.notify()
		return
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) handleServerEvent(msgType string, msg interface{}) {
	switch ev := msg.(type) {
	case protocol.PairedMsg:
		s.applyPaired(ev)
	case protocol.ChatMsg:
		s.applyMessage(ev)
	case protocol.TypingMsg:
		s.applyTyping(ev)
	case protocol.SystemMsg:
		s.applySystem(ev)
	case protocol.QueueSizeMsg:
		s.applyQueueSize(ev)
	case protocol.ErrorMsg:
		// Observed for diagnostics only; server errors do not force a
		// state transition.
		log.Printf("chat: server error: %s", ev.Message)
	default:
		log.Printf("chat: unhandled server event type=%q", msgType)
	}
}

func (s *Session) handleClosed(reason error) {
	s.mu.Lock()
	s.socketOpen = false
	switch s.status {
	case StatusSearching:
		// Stay searching; the connection manager arms the reconnect.
		log.Printf("chat: connection lost while searching: %v", reason)
	case StatusMatched:
		// Unexpected close mid-conversation: fall back to idle, no
		// automatic retry. The user must find again.
		log.Printf("chat: connection lost while matched: %v", reason)
		s.clearRoomLocked()
		s.status = StatusIdle
	default:
		log.Printf("chat: connection closed: %v", reason)
	}
	s.mu.Unlock()
	s.notify()
}

// shouldReconnect reports whether an unexpected close should be followed by
// a reconnect attempt. Only an interrupted search qualifies.
func (s *Session) shouldReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusSearching
}

// ---------------------------------------------------------------------------
// Inbound event application
// ---------------------------------------------------------------------------

func (s *Session) applyPaired(ev protocol.PairedMsg) {
	s.mu.Lock()
	s.clearRoomLocked()
	s.status = StatusMatched
	s.room = ev.Room
	s.partner = &Partner{ID: ev.Partner.ID, Avatar: ev.Partner.Avatar}
	s.startedAt = ev.StartedAt
	s.mu.Unlock()

	metrics.PairingsTotal.Inc()
	s.notify()
}

func (s *Session) applyMessage(ev protocol.ChatMsg) {
	s.mu.Lock()
	appended := s.msgs.appendRemote(ev.Text, ev.SentAt)
	s.mu.Unlock()

	if !appended {
		// The server reflects our own sends back to the room; the local
		// optimistic entry already represents this transmission.
		metrics.MessagesTotal.WithLabelValues("deduped").Inc()
		return
	}
	metrics.MessagesTotal.WithLabelValues("received").Inc()
	s.notify()
}

func (s *Session) applyTyping(ev protocol.TypingMsg) {
	s.mu.Lock()
	s.typing = ev.IsTyping
	s.typingGen++
	gen := s.typingGen
	s.stopTypingTimerLocked()
	if ev.IsTyping {
		// The flag has a bounded lifetime: a dropped "stopped typing"
		// frame or a partner disconnect must never leave it stuck.
		s.typingTmr = time.AfterFunc(s.cfg.TypingTTL, func() {
			s.expireTyping(gen)
		})
	}
	s.mu.Unlock()

	metrics.TypingEventsTotal.WithLabelValues("received").Inc()
	s.notify()
}

func (s *Session) applySystem(ev protocol.SystemMsg) {
	switch ev.Code {
	case protocol.SystemSearching:
		s.mu.Lock()
		s.clearRoomLocked()
		s.status = StatusSearching
		s.mu.Unlock()
		s.notify()
	case protocol.SystemIdle:
		s.mu.Lock()
		s.wantSearch = false
		s.clearRoomLocked()
		s.status = StatusIdle
		s.mu.Unlock()
		s.conn.Close()
		s.notify()
	default:
		log.Printf("chat: unhandled system code=%q message=%q", ev.Code, ev.Message)
	}
}

func (s *Session) applyQueueSize(ev protocol.QueueSizeMsg) {
	s.mu.Lock()
	s.queueSize = ev.Count
	s.queueKnown = true
	s.mu.Unlock()

	metrics.QueueSize.Set(float64(ev.Count))
	s.notify()
}

// expireTyping is the TTL timer body. The generation check discards timers
// that were superseded by a newer typing event while this one was firing.
func (s *Session) expireTyping(gen uint64) {
	s.mu.Lock()
	if gen != s.typingGen {
		s.mu.Unlock()
		return
	}
	s.typing = false
	s.typingTmr = nil
	s.mu.Unlock()
	s.notify()
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Status returns the controlling session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SocketOpen reports whether the transport is currently connected.
func (s *Session) SocketOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketOpen
}

// Identity returns the client identity announced to the server.
func (s *Session) Identity() Identity {
	return s.identity
}

// Room returns the current room ID, or "" outside a match.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Partner returns a copy of the current partner, or nil outside a match.
func (s *Session) Partner() *Partner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partner == nil {
		return nil
	}
	p := *s.partner
	return &p
}

// StartedAt returns the pairing timestamp in milliseconds since the epoch,
// or 0 outside a match. It exists for elapsed-time display only.
func (s *Session) StartedAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Messages returns a copy of the current room's message log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs.snapshot()
}

// Typing reports the partner's last-known typing state.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// QueueSize returns the last reported waiting-queue count and whether the
// server has reported one at all.
func (s *Session) QueueSize() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueSize, s.queueKnown
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// clearRoomLocked atomically resets every room-scoped field: room, partner,
// messages, typing (and its timer), startedAt. Every transition that changes
// the room must go through here; partial clears leak stale state into the
// next match.
func (s *Session) clearRoomLocked() {
	s.room = ""
	s.partner = nil
	s.startedAt = 0
	s.msgs.clear()
	s.typing = false
	s.typingGen++
	s.stopTypingTimerLocked()
}

func (s *Session) stopTypingTimerLocked() {
	if s.typingTmr != nil {
		s.typingTmr.Stop()
		s.typingTmr = nil
	}
}

// nextSentAtLocked returns the send timestamp for an outgoing message. Two
// sends within the same millisecond would collide on the echo dedup key, so
// the clock is bumped to stay strictly increasing per session.
func (s *Session) nextSentAtLocked() int64 {
	now := s.nowMillis()
	if now <= s.lastSentAt {
		now = s.lastSentAt + 1
	}
	s.lastSentAt = now
	return now
}

func (s *Session) nowMillis() int64 {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now().UnixMilli()
}

func (s *Session) notify() {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange()
	}
}
