package meetings

import (
	"time"

	"github.com/ezmeets/backend/internal/models"
)

// Phase is a meeting's lifecycle state derived from wall-clock time.
type Phase string

const (
	PhaseScheduled Phase = "scheduled"
	PhaseLive      Phase = "live"
	PhaseEnded     Phase = "ended"
)

// PhaseOf computes the meeting's phase at the given instant. Pure: callers
// must invoke it fresh on every decision, never cache the result, because
// phase transitions happen as time passes without any write.
//
// Ended wins over Scheduled when the two overlap (an "end now" issued before
// the start time collapses the meeting immediately).
func PhaseOf(m *models.Meeting, now time.Time) Phase {
	if !now.Before(m.EndingTime) {
		return PhaseEnded
	}
	if now.Before(m.StartTime) {
		return PhaseScheduled
	}
	return PhaseLive
}

// RemainingDuration returns how long the meeting has left at the given
// instant, exactly. Zero for ended meetings. Join tokens inherit this as
// their lifetime, so now + remaining must equal ending_time: a token must
// never outlive the meeting it admits to.
func RemainingDuration(m *models.Meeting, now time.Time) time.Duration {
	left := m.EndingTime.Sub(now)
	if left <= 0 {
		return 0
	}
	return left
}
