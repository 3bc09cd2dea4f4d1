package chat

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIdentity_GeneratesValidUserID(t *testing.T) {
	id := NewIdentity()

	if _, err := uuid.Parse(id.UserID); err != nil {
		t.Errorf("user ID is not a valid UUID: %q (%v)", id.UserID, err)
	}
}

func TestNewIdentity_AvatarComesFromBank(t *testing.T) {
	id := NewIdentity()

	found := false
	for _, a := range avatarBank {
		if a == id.Avatar {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("avatar %q is not in the bank", id.Avatar)
	}
}

func TestNewIdentity_UserIDsAreUnique(t *testing.T) {
	a := NewIdentity()
	b := NewIdentity()

	if a.UserID == b.UserID {
		t.Errorf("two identities share user ID %q", a.UserID)
	}
}
