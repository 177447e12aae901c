package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OnlineStatus is the cached presence state of a roster entry. It is the
// materialized form of the most recent connection event.
type OnlineStatus string

const (
	StatusOnline  OnlineStatus = "Online"
	StatusOffline OnlineStatus = "Offline"
)

// ConnectionAction tags a connection event.
type ConnectionAction string

const (
	ActionEnter ConnectionAction = "enter"
	ActionLeave ConnectionAction = "leave"
)

// StatusForAction maps a connection action to the resulting online status.
func StatusForAction(a ConnectionAction) OnlineStatus {
	if a == ActionEnter {
		return StatusOnline
	}
	return StatusOffline
}

// RosterEntry records one user's participation in one meeting. Created
// lazily on the user's first connection event; at most one entry exists per
// (user, meeting) pair. Display name, role and avatar are snapshots taken at
// first connection, not refreshed afterwards.
type RosterEntry struct {
	ID           uuid.UUID    `json:"id"`
	MeetingID    uuid.UUID    `json:"meeting_id"`
	UserID       uuid.UUID    `json:"user_id"`
	FullName     string       `json:"full_name"`
	Username     string       `json:"username"`
	Role         Role         `json:"role"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
	OnlineStatus OnlineStatus `json:"online_status"`
	CreatedAt    time.Time    `json:"created_at"`

	ConnectionEvents []ConnectionEvent `json:"connection_events,omitempty"`
	CamStatuses      []CamStatus       `json:"cam_statuses,omitempty"`
}

// ConnectionEvent is one enter/leave notification from the conferencing
// backend. The log is append-only and never deduplicated.
type ConnectionEvent struct {
	ID            int64            `json:"id"`
	RosterEntryID uuid.UUID        `json:"roster_entry_id"`
	At            time.Time        `json:"at"`
	Action        ConnectionAction `json:"action"`
}

// CamStatus is an in-meeting camera snapshot recorded against a roster
// entry: a photo stored in S3 plus the detection payload that produced it.
type CamStatus struct {
	ID            uuid.UUID       `json:"id"`
	RosterEntryID uuid.UUID       `json:"roster_entry_id"`
	PhotoKey      string          `json:"-"`
	PhotoURL      string          `json:"photo_url"`
	Status        string          `json:"status"`
	Data          json.RawMessage `json:"data,omitempty"`
	At            time.Time       `json:"at"`
}
