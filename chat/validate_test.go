package chat

import (
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"simple text", "hello there", false},
		{"empty", "", true},
		{"at char limit", strings.Repeat("a", MaxTextChars), false},
		{"over char limit", strings.Repeat("a", MaxTextChars+1), true},
		{"over byte limit", strings.Repeat("🦊", MaxMessageBytes/4+1), true},
		{"invalid utf8", "hi\xff\xfe", true},
		{"emoji", "🐼 hello", false},
	}

	for _, tc := range cases {
		err := ValidateMessage(tc.text)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestSendMessage_OversizedTextIsNotSent(t *testing.T) {
	s, tr := newTestSession(Config{})
	matchSession(s)
	before := len(tr.frames())

	s.SendMessage(strings.Repeat("a", MaxTextChars+1))

	if got := tr.frames(); len(got) != before {
		t.Errorf("oversized message reached the wire: %v", got[before:])
	}
	if n := len(s.Messages()); n != 0 {
		t.Errorf("oversized message appended locally: %d entries", n)
	}
}
