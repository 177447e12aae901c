package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Meeting represents a scheduled video-meeting. Lifecycle state (scheduled,
// live, ended) is never stored; it is derived from StartTime, EndingTime and
// the current time on every read.
type Meeting struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	RoomName    string    `json:"room_name"` // Name with spaces stripped; unique, used as the Jitsi room
	StartTime   time.Time `json:"start_time"`
	DurationMin int       `json:"duration_minutes"`
	EndingTime  time.Time `json:"ending_time"` // mutable independently of StartTime+Duration ("end now")
	Description string    `json:"description"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	AllowedUsers []AllowedUser `json:"allowed_users,omitempty"`
	Roster       []RosterEntry `json:"roster,omitempty"`
}

// AllowedUser is one entry in a meeting's authorization allow-list.
type AllowedUser struct {
	MeetingID uuid.UUID `json:"meeting_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// IsAllowed reports whether the user appears on the allow-list.
func (m *Meeting) IsAllowed(userID uuid.UUID) bool {
	for _, au := range m.AllowedUsers {
		if au.UserID == userID {
			return true
		}
	}
	return false
}

// RoomName strips spaces from a meeting name, producing the conference room
// identifier. "Team Sync" and "TeamSync" collide, so uniqueness is enforced
// on this form at creation time.
func RoomName(meetingName string) string {
	return strings.ReplaceAll(meetingName, " ", "")
}
