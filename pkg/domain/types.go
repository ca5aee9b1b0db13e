package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
	StatusRejected  BookingStatus = "rejected"
)

// Terminal reports whether no transition leaves the status.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// Active statuses are the ones that occupy a slot on the expert's calendar.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type SessionKind string

const (
	KindAudio SessionKind = "audio"
	KindVideo SessionKind = "video"
	KindChat  SessionKind = "chat"
)

func (k SessionKind) Valid() bool {
	return k == KindAudio || k == KindVideo || k == KindChat
}

type UserRole string

const (
	RoleSeeker UserRole = "seeker"
	RoleExpert UserRole = "expert"
)

type NotificationType string

const (
	NotifyBookingRequest     NotificationType = "booking_request"
	NotifyBookingAccepted    NotificationType = "booking_accepted"
	NotifyBookingRejected    NotificationType = "booking_rejected"
	NotifyBookingCancelled   NotificationType = "booking_cancelled"
	NotifyBookingRescheduled NotificationType = "booking_rescheduled"
	NotifyReminder           NotificationType = "reminder"
	NotifyMessage            NotificationType = "message"
)

// Booking is a single requested/confirmed consultation slot between one
// seeker and one expert. Records are never deleted; terminal statuses are
// retained for history and notification linkage.
type Booking struct {
	ID              string        `json:"id"`
	ExpertID        string        `json:"expertId"`
	SeekerID        string        `json:"seekerId"`
	Date            time.Time     `json:"date"`
	StartAt         time.Time     `json:"startAt"`
	EndAt           time.Time     `json:"endAt"`
	Kind            SessionKind   `json:"sessionType"`
	Status          BookingStatus `json:"status"`
	Amount          float64       `json:"amount"`
	Note            string        `json:"notes,omitempty"`
	RejectionReason string        `json:"rejectionReason,omitempty"`
	SeekerRead      bool          `json:"seekerRead"`
	ExpertRead      bool          `json:"expertRead"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Participant reports whether userID is one of the two parties.
func (b Booking) Participant(userID string) bool {
	return userID == b.SeekerID || userID == b.ExpertID
}

// Counterpart returns the other party's user ID.
func (b Booking) Counterpart(userID string) string {
	if userID == b.SeekerID {
		return b.ExpertID
	}
	return b.SeekerID
}

// EffectiveStatus derives the display-facing status from the stored status
// plus current time: a confirmed booking whose end has passed presents as
// completed even before the stored row converges.
func EffectiveStatus(b Booking, now time.Time) BookingStatus {
	if b.Status == StatusConfirmed && !now.Before(b.EndAt) {
		return StatusCompleted
	}
	return b.Status
}

// AvailabilityWindow is a recurring weekly time range in which an expert
// accepts bookings. At most one window exists per (expert, weekday).
type AvailabilityWindow struct {
	ExpertID    string       `json:"expertId"`
	Weekday     time.Weekday `json:"dayOfWeek"`
	StartMinute int          `json:"startMinute"`
	EndMinute   int          `json:"endMinute"`
}

// Contains reports whether the [start, end) range falls entirely inside the
// window. Both instants must be on the window's weekday in UTC.
func (w AvailabilityWindow) Contains(start, end time.Time) bool {
	start = start.UTC()
	end = end.UTC()
	if start.Weekday() != w.Weekday {
		return false
	}
	if end.Day() != start.Day() || end.Month() != start.Month() {
		// Midnight-crossing ranges never fit a same-day window.
		return false
	}
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return startMin >= w.StartMinute && endMin <= w.EndMinute
}

// ParseClock parses an "HH:MM" wall-clock string into minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Notification is a durable per-recipient record of a lifecycle event. Rows
// are only ever mutated to flip the read flag.
type Notification struct {
	ID        int64             `json:"id"`
	UserID    string            `json:"userId"`
	Type      NotificationType  `json:"type"`
	Message   string            `json:"message"`
	RelatedID string            `json:"relatedId,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}
