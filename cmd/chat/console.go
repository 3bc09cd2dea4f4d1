package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/strangerchat/chat-client/chat"
)

// console prints session changes as they happen: status transitions,
// new messages, typing flips, and queue telemetry.
type console struct {
	mu        sync.Mutex
	out       io.Writer
	status    chat.Status
	printed   int
	typing    bool
	queueSize int
}

func newConsole(out io.Writer) *console {
	return &console{out: out, status: chat.StatusIdle, queueSize: -1}
}

func (c *console) render(s *chat.Session) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := s.Status(); st != c.status {
		c.status = st
		switch st {
		case chat.StatusSearching:
			fmt.Fprintln(c.out, "* looking for a stranger...")
		case chat.StatusMatched:
			if p := s.Partner(); p != nil {
				fmt.Fprintf(c.out, "* matched with %s %s\n", p.Avatar, p.ID)
			}
			c.printed = 0
			c.typing = false
		case chat.StatusIdle:
			fmt.Fprintln(c.out, "* back to idle")
			c.printed = 0
			c.typing = false
		}
	}

	msgs := s.Messages()
	if c.printed > len(msgs) {
		c.printed = 0
	}
	for _, m := range msgs[c.printed:] {
		who := "stranger"
		if m.Mine {
			who = "you"
		}
		ts := time.UnixMilli(m.SentAt).Format("15:04:05")
		fmt.Fprintf(c.out, "[%s] %s: %s\n", ts, who, m.Text)
	}
	c.printed = len(msgs)

	if t := s.Typing(); t != c.typing {
		c.typing = t
		if t {
			fmt.Fprintln(c.out, "* stranger is typing...")
		}
	}

	if n, known := s.QueueSize(); known && n != c.queueSize && c.status == chat.StatusSearching {
		c.queueSize = n
		fmt.Fprintf(c.out, "* %d waiting in queue\n", n)
	}
}
