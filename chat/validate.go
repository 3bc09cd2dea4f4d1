package chat

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxMessageBytes mirrors the server's frame size cap.
	MaxMessageBytes = 4096
	// MaxTextChars mirrors the server's character count cap.
	MaxTextChars = 2000
)

// ValidateMessage checks message text against the server's content limits
// before it goes on the wire, so oversized or broken input fails locally
// instead of bouncing off the server.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
