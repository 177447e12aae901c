package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestRoomName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Team Sync", "TeamSync"},
		{"TeamSync", "TeamSync"},
		{"a b c", "abc"},
		{"  spaced  out  ", "spacedout"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := RoomName(tc.in); got != tc.want {
			t.Errorf("RoomName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsAllowed(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	m := &Meeting{ID: uuid.New()}
	m.AllowedUsers = []AllowedUser{{MeetingID: m.ID, UserID: alice}}

	if !m.IsAllowed(alice) {
		t.Error("alice should be allowed")
	}
	if m.IsAllowed(bob) {
		t.Error("bob should not be allowed")
	}
}
