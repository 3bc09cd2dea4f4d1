// Package transport owns the single WebSocket connection to the chat server.
// It dials with gobwas/ws, reads frames in a background goroutine, decodes
// them with the protocol package, and reports lifecycle events through
// callbacks. It also implements the reconnect policy: after an unexpected
// close, exactly one reconnect attempt is scheduled after a fixed delay, and
// only while the session reports that it is still searching for a partner.
package transport

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/strangerchat/chat-client/internal/metrics"
	"github.com/strangerchat/chat-client/internal/protocol"
)

// Config holds tunable parameters for the connection manager.
type Config struct {
	DialTimeout    time.Duration // timeout for establishing the WebSocket connection
	ReconnectDelay time.Duration // fixed delay before a reconnect attempt
}

// DefaultConfig returns a Config with the reference behavior: a 10 second
// dial timeout and a 1 second reconnect delay without backoff.
func DefaultConfig() Config {
	return Config{
		DialTimeout:    10 * time.Second,
		ReconnectDelay: 1 * time.Second,
	}
}

// Callbacks are the hooks a Manager invokes as the connection changes state.
// For a given connection they are strictly ordered: OnOpen first, then
// OnMessage in frame arrival order, then OnClose exactly once. All callbacks
// run on the manager's dial/read goroutine, never with internal locks held.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(msgType string, msg interface{})
	OnClose   func(reason error)

	// ShouldReconnect is consulted after the OnClose callback has run. It
	// reports whether the close happened while the session was actively
	// searching, the only state in which an automatic reconnect is allowed.
	ShouldReconnect func() bool
}

// Manager owns the WebSocket handle. At most one connection is live at a
// time, and at most one reconnect timer is pending at a time. All send
// failures are swallowed: an intent fired against a closed connection is an
// ordinary race, not an error.
type Manager struct {
	cfg Config
	cb  Callbacks

	mu        sync.Mutex
	conn      net.Conn
	dialing   bool
	manual    bool // set by Close; suppresses reconnects until the next Open
	reconnect *time.Timer
	gen       uint64 // connection generation, guards stale read-loop teardowns

	writeMu sync.Mutex // serializes outbound frames on the current connection
}

// NewManager creates a Manager with the given configuration and callbacks.
func NewManager(cfg Config, cb Callbacks) *Manager {
	return &Manager{cfg: cfg, cb: cb}
}

// Open establishes the connection to url. It is idempotent: if a connection
// is already open or a dial is in flight, it does nothing. Open returns
// immediately; the dial happens on a background goroutine and a failed
// attempt surfaces through the OnClose path.
func (m *Manager) Open(url string) {
	m.mu.Lock()
	if m.conn != nil || m.dialing {
		m.mu.Unlock()
		return
	}
	m.manual = false
	m.stopReconnectLocked()
	m.dialing = true
	m.mu.Unlock()

	go m.dial(url)
}

// Send marshals v and transmits it as a text frame. It is a silent no-op when
// no connection is open, and it never returns an error to the caller; write
// failures are logged and left for the read loop to observe as a close.
func (m *Manager) Send(v interface{}) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("transport: marshal failed: %v", err)
		return
	}

	m.writeMu.Lock()
	err = wsutil.WriteClientMessage(conn, ws.OpText, data)
	m.writeMu.Unlock()
	if err != nil {
		log.Printf("transport: write failed: %v", err)
	}
}

// Close releases the transport and cancels any pending reconnect. If a
// connection is open, its OnClose callback is still delivered exactly once,
// via the read loop observing the closed socket.
func (m *Manager) Close() {
	m.mu.Lock()
	m.manual = true
	m.stopReconnectLocked()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// IsOpen reports whether a connection is currently established.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// dial performs the blocking connect and, on success, runs the read loop
// until the connection dies.
func (m *Manager) dial(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	conn, _, _, err := ws.Dial(ctx, url)
	cancel()
	if err != nil {
		log.Printf("transport: dial %s failed: %v", url, err)
		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()
		m.closed(url, err)
		return
	}

	m.mu.Lock()
	m.dialing = false
	if m.manual {
		// Close raced the dial; the session has already moved on.
		m.mu.Unlock()
		_ = conn.Close()
		m.closed(url, net.ErrClosed)
		return
	}
	m.conn = conn
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if m.cb.OnOpen != nil {
		m.cb.OnOpen()
	}
	m.readLoop(conn, gen, url)
}

// readLoop reads text frames until the connection fails, decoding each one
// and handing it to OnMessage. A frame that cannot be decoded is dropped and
// logged; a single bad frame must not end the session.
func (m *Manager) readLoop(conn net.Conn, gen uint64, url string) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			m.teardown(conn, gen, url, err)
			return
		}

		msgType, msg, perr := protocol.ParseServerEvent(data)
		if perr != nil {
			metrics.DroppedFramesTotal.Inc()
			log.Printf("transport: dropping malformed frame: %v", perr)
			continue
		}

		if m.cb.OnMessage != nil {
			m.cb.OnMessage(msgType, msg)
		}
	}
}

// teardown releases a dead connection and runs the close path. The
// generation check makes it a no-op for connections that have already been
// superseded, so OnClose fires exactly once per open connection.
func (m *Manager) teardown(conn net.Conn, gen uint64, url string, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	_ = conn.Close()
	m.closed(url, err)
}

// closed delivers OnClose and then decides whether to arm the reconnect
// timer. ShouldReconnect is evaluated after OnClose so the session has
// already settled into its post-close status.
func (m *Manager) closed(url string, err error) {
	if m.cb.OnClose != nil {
		m.cb.OnClose(err)
	}

	should := m.cb.ShouldReconnect != nil && m.cb.ShouldReconnect()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !should || m.manual || m.conn != nil || m.dialing || m.reconnect != nil {
		return
	}

	metrics.ReconnectsTotal.Inc()
	log.Printf("transport: connection lost while searching, reconnecting in %s", m.cfg.ReconnectDelay)
	m.reconnect = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		m.reconnect = nil
		m.mu.Unlock()
		m.Open(url)
	})
}

// stopReconnectLocked cancels the pending reconnect timer, if any. Callers
// must hold mu.
func (m *Manager) stopReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}
