package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/strangerchat/chat-client/internal/debounce"
)

const (
	// typingDebounceDelay coalesces keystroke-level intents before anything
	// reaches the wire.
	typingDebounceDelay = 160 * time.Millisecond

	// typingQuietWindow is how long after the last keystroke a "stopped
	// typing" signal is sent.
	typingQuietWindow = 900 * time.Millisecond
)

// TypingNotifier turns keystroke-level input events into debounced typing
// signals for the current room. A burst of keystrokes produces a single
// typing:true; a quiet period, an emptied input, a blur, or a message send
// produces typing:false. The peer never needs more than that.
type TypingNotifier struct {
	debounced *debounce.Debouncer[bool]
	quiet     time.Duration

	mu   sync.Mutex
	stop *time.Timer // pending quiet-window timer, at most one
}

// NewTypingNotifier creates a notifier that reports through the session's
// SendTyping intent.
func NewTypingNotifier(s *Session) *TypingNotifier {
	return newTypingNotifier(s.SendTyping, typingDebounceDelay, typingQuietWindow)
}

func newTypingNotifier(send func(bool), debounceDelay, quiet time.Duration) *TypingNotifier {
	return &TypingNotifier{
		debounced: debounce.New(debounceDelay, send),
		quiet:     quiet,
	}
}

// InputChanged reports the current contents of the input field after a
// keystroke. Non-blank text signals typing and re-arms the quiet-window
// timer; blank text signals stopped.
func (n *TypingNotifier) InputChanged(text string) {
	if strings.TrimSpace(text) == "" {
		n.cancelStop()
		n.debounced.Call(false)
		return
	}
	n.debounced.Call(true)
	n.scheduleStop()
}

// InputBlurred reports that the input field lost focus.
func (n *TypingNotifier) InputBlurred() {
	n.cancelStop()
	n.debounced.Call(false)
}

// MessageSent reports that the composed message was just sent, which ends
// the typing burst.
func (n *TypingNotifier) MessageSent() {
	n.cancelStop()
	n.debounced.Call(false)
}

func (n *TypingNotifier) scheduleStop() {
	n.mu.Lock()
	if n.stop != nil {
		n.stop.Stop()
	}
	n.stop = time.AfterFunc(n.quiet, func() {
		n.debounced.Call(false)
	})
	n.mu.Unlock()
}

func (n *TypingNotifier) cancelStop() {
	n.mu.Lock()
	if n.stop != nil {
		n.stop.Stop()
		n.stop = nil
	}
	n.mu.Unlock()
}
