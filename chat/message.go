package chat

import "github.com/google/uuid"

// Message is a single entry in the current room's log. The ID is generated
// locally and never transmitted; SentAt is the canonical ordering and
// deduplication key. Reaction is a client-local glyph attached to a message
// after the fact.
type Message struct {
	ID       string
	Text     string
	Mine     bool
	SentAt   int64
	Reaction string
}

// messageLog is the append-only message sequence for the current room. It is
// not self-locking: the Session serializes all access under its own mutex,
// so the log stays a plain slice with the dedup rule attached.
type messageLog struct {
	msgs []Message
}

// appendLocal records an optimistic entry for a message this client just
// sent. The entry is what the eventual server echo will be reconciled
// against.
func (l *messageLog) appendLocal(text string, sentAt int64) Message {
	m := Message{ID: uuid.NewString(), Text: text, Mine: true, SentAt: sentAt}
	l.msgs = append(l.msgs, m)
	return m
}

// appendRemote records a message received from the room. It returns false
// without appending when the frame is the server's echo of one of our own
// sends, identified by a local entry with the same sentAt timestamp.
func (l *messageLog) appendRemote(text string, sentAt int64) bool {
	if l.hasLocalEcho(sentAt) {
		return false
	}
	l.msgs = append(l.msgs, Message{ID: uuid.NewString(), Text: text, SentAt: sentAt})
	return true
}

// hasLocalEcho reports whether a locally authored entry with the given
// timestamp already exists.
func (l *messageLog) hasLocalEcho(sentAt int64) bool {
	for _, m := range l.msgs {
		if m.Mine && m.SentAt == sentAt {
			return true
		}
	}
	return false
}

// react attaches a reaction glyph to the message with the given ID. It
// returns false if no such message exists.
func (l *messageLog) react(id, glyph string) bool {
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			l.msgs[i].Reaction = glyph
			return true
		}
	}
	return false
}

// snapshot returns a copy of the log safe to hand to callers.
func (l *messageLog) snapshot() []Message {
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// clear drops every entry. Called on every transition away from a room.
func (l *messageLog) clear() {
	l.msgs = nil
}

func (l *messageLog) len() int {
	return len(l.msgs)
}
