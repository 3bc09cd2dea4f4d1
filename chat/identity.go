package chat

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// avatarBank is the set of display glyphs an identity can be assigned. The
// avatar is chosen once and fixed for the client's lifetime.
var avatarBank = []string{
	"🦊", "🐼", "🐸", "🐨", "🐯", "🐙", "🐧", "🐳", "🦄", "🐝", "🐶", "🐱", "🦁", "🐷",
}

// Identity is the client's stable, opaque identity: a generated user ID and
// a randomly assigned avatar glyph. Nothing about it is durable here;
// persistence, if any, belongs to the embedding application.
type Identity struct {
	UserID string
	Avatar string
}

// NewIdentity generates a fresh identity with a random avatar.
func NewIdentity() Identity {
	return Identity{
		UserID: uuid.NewString(),
		Avatar: avatarBank[rand.IntN(len(avatarBank))],
	}
}
