// Package protocol defines the WebSocket message types and structures used
// for communication between the chat client and the matchmaking server. All
// messages are serialized as JSON and follow a consistent envelope format
// with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoinQueue = "join_queue"
	TypeMessage   = "message"
	TypeTyping    = "typing"
	TypeNext      = "next"
	TypeLeave     = "leave"
)

// Server -> Client message types. TypeMessage and TypeTyping are shared with
// the client->server union: the server relays them with the same shape.
const (
	TypePaired    = "paired"
	TypeSystem    = "system"
	TypeQueueSize = "queue_size"
	TypeError     = "error"
)

// System message codes.
const (
	SystemIdle      = "idle"
	SystemSearching = "searching"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinQueueMsg is sent by the client to enter the matchmaking queue with its
// identity.
type JoinQueueMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Avatar string `json:"avatar"`
}

// ChatMsg is a text message within a room. The client sends it with a
// locally generated sentAt timestamp; the server reflects it back to every
// participant of the room with the same shape, including the sender.
type ChatMsg struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	Text   string `json:"text"`
	SentAt int64  `json:"sentAt"`
}

// TypingMsg indicates whether a participant is currently typing. Also used
// in both directions.
type TypingMsg struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

// NextMsg asks the server to tear down the current room and re-queue the
// sender.
type NextMsg struct {
	Type string `json:"type"`
}

// LeaveMsg removes the sender from the queue or the current room.
type LeaveMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// PartnerInfo identifies the remote participant of a room.
type PartnerInfo struct {
	ID     string `json:"id"`
	Avatar string `json:"avatar"`
}

// PairedMsg is sent by the server when two clients have been matched into a
// room.
type PairedMsg struct {
	Type      string      `json:"type"`
	Room      string      `json:"room"`
	Partner   PartnerInfo `json:"partner"`
	StartedAt int64       `json:"startedAt"`
}

// SystemMsg carries a server-driven status change: "searching" when the
// client has been re-queued, "idle" when the conversation is over and the
// client should disconnect.
type SystemMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueueSizeMsg reports the current number of waiting clients.
type QueueSizeMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ErrorMsg is sent by the server to communicate an error condition. It does
// not force a state transition on the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Constructors for outbound events
// ---------------------------------------------------------------------------

// NewJoinQueue builds a join_queue event for the given identity.
func NewJoinQueue(userID, avatar string) JoinQueueMsg {
	return JoinQueueMsg{Type: TypeJoinQueue, UserID: userID, Avatar: avatar}
}

// NewChatMsg builds a message event for the given room.
func NewChatMsg(room, text string, sentAt int64) ChatMsg {
	return ChatMsg{Type: TypeMessage, Room: room, Text: text, SentAt: sentAt}
}

// NewTypingMsg builds a typing event for the given room.
func NewTypingMsg(room string, isTyping bool) TypingMsg {
	return TypingMsg{Type: TypeTyping, Room: room, IsTyping: isTyping}
}

// NewNext builds a next event.
func NewNext() NextMsg {
	return NextMsg{Type: TypeNext}
}

// NewLeave builds a leave event.
func NewLeave() LeaveMsg {
	return LeaveMsg{Type: TypeLeave}
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerEvent parses raw WebSocket bytes into a typed server message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// client-only message types; a single undecodable frame is the caller's cue
// to drop it and keep the connection alive.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypePaired:
		var m PairedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSystem:
		var m SystemMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeQueueSize:
		var m QueueSizeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown server message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}
