package session

import (
	"time"

	"consultly/pkg/domain"
)

const (
	// JoinLead is how early a participant may enter before the scheduled
	// start.
	JoinLead = 5 * time.Minute
	// RejoinGrace is how long after the scheduled start a briefly
	// disconnected participant may come back.
	RejoinGrace = 20 * time.Minute
)

// CanJoin reports whether a participant may enter the session at now:
// within [start − JoinLead, end), confirmed bookings only. Pure function of
// the booking's stored times and the clock.
func CanJoin(b domain.Booking, now time.Time) bool {
	if b.Status != domain.StatusConfirmed {
		return false
	}
	return !now.Before(b.StartAt.Add(-JoinLead)) && now.Before(b.EndAt)
}

// WithinRejoinGrace reports whether a reconnect attempt falls inside the
// grace window [start, start + RejoinGrace). Confirmed bookings only.
func WithinRejoinGrace(b domain.Booking, now time.Time) bool {
	if b.Status != domain.StatusConfirmed {
		return false
	}
	return !now.Before(b.StartAt) && now.Before(b.StartAt.Add(RejoinGrace))
}
