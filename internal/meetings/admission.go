package meetings

import (
	"errors"
	"time"

	"github.com/ezmeets/backend/internal/models"
)

// Admission-path errors. Every denial carries its own message so callers can
// report the exact reason.
var (
	ErrMeetingNotFound  = errors.New("meeting not found")
	ErrNameTaken        = errors.New("meeting with the same name already exists")
	ErrMeetingLive      = errors.New("the meeting has started")
	ErrMeetingEnded     = errors.New("the meeting has ended")
	ErrNotStarted       = errors.New("meeting has not started yet")
	ErrEnded            = errors.New("meeting has ended")
	ErrNotApproved      = errors.New("you are not approved")
	ErrNotAllowed       = errors.New("you are not allowed at that meeting")
	ErrAlreadyInMeeting = errors.New("already on meeting")
)

// JoinRequest carries everything the evaluator needs, loaded once per
// request. Role is a snapshot taken at evaluation time; the evaluator never
// re-queries roles or presence itself.
type JoinRequest struct {
	Meeting *models.Meeting
	User    *models.User
	Role    models.Role
	// OnlineInLiveMeeting is the presence fact: the user has an Online
	// roster entry in some currently-live meeting. The scan that produces
	// it covers every live meeting the user is roster-present in,
	// including the one being joined, so a user who dropped without a
	// leave event cannot rejoin until the backend logs the leave.
	OnlineInLiveMeeting bool
	Now                 time.Time
}

// Admission is a successful join decision.
type Admission struct {
	Room      string
	Moderator bool
	// Remaining is how long the meeting has left; the join token expires
	// when the meeting does.
	Remaining time.Duration
}

// EvaluateJoin runs the ordered admission checks and returns either an
// Admission or the first failing check's error.
//
// Order: not-started, ended, then (for non-superadmins) account approval and
// allow-list membership, then the presence check. Superadmins skip approval
// and allow-list but not the presence check.
func EvaluateJoin(req JoinRequest) (*Admission, error) {
	m := req.Meeting
	if m == nil {
		return nil, ErrMeetingNotFound
	}

	switch PhaseOf(m, req.Now) {
	case PhaseScheduled:
		return nil, ErrNotStarted
	case PhaseEnded:
		return nil, ErrEnded
	}

	moderator := true
	if req.Role != models.RoleSuperAdmin {
		if req.User.ApproveStatus != models.ApproveStatusApproved {
			return nil, ErrNotApproved
		}
		if !m.IsAllowed(req.User.ID) {
			return nil, ErrNotAllowed
		}
		moderator = req.Role != models.RoleUser
	}

	if req.OnlineInLiveMeeting {
		return nil, ErrAlreadyInMeeting
	}

	return &Admission{
		Room:      models.RoomName(m.Name),
		Moderator: moderator,
		Remaining: RemainingDuration(m, req.Now),
	}, nil
}
