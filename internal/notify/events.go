package notify

import (
	"encoding/json"
	"fmt"

	"consultly/pkg/domain"
)

// Routing keys published per notification type. The push worker binds
// "notify.#".
const (
	RKBookingRequested   = "notify.booking.requested"
	RKBookingAccepted    = "notify.booking.accepted"
	RKBookingRejected    = "notify.booking.rejected"
	RKBookingCancelled   = "notify.booking.cancelled"
	RKBookingRescheduled = "notify.booking.rescheduled"
	RKReminder           = "notify.reminder"
	RKMessage            = "notify.message"
)

// RoutingKey maps a notification type to its event routing key.
func RoutingKey(t domain.NotificationType) string {
	switch t {
	case domain.NotifyBookingRequest:
		return RKBookingRequested
	case domain.NotifyBookingAccepted:
		return RKBookingAccepted
	case domain.NotifyBookingRejected:
		return RKBookingRejected
	case domain.NotifyBookingCancelled:
		return RKBookingCancelled
	case domain.NotifyBookingRescheduled:
		return RKBookingRescheduled
	case domain.NotifyReminder:
		return RKReminder
	default:
		return RKMessage
	}
}

// PushEvent is the payload consumed by the push worker. It carries enough to
// build a vendor push without another store round trip.
type PushEvent struct {
	UserID    string            `json:"userId"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	BookingID string            `json:"bookingId,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// PushTitle renders the human title for a notification type.
func PushTitle(t domain.NotificationType) string {
	switch t {
	case domain.NotifyBookingRequest:
		return "New booking request"
	case domain.NotifyBookingAccepted:
		return "Booking accepted"
	case domain.NotifyBookingRejected:
		return "Booking rejected"
	case domain.NotifyBookingCancelled:
		return "Booking cancelled"
	case domain.NotifyBookingRescheduled:
		return "Booking rescheduled"
	case domain.NotifyReminder:
		return "Session reminder"
	default:
		return "Consultly"
	}
}

// DecodePushEvent parses a raw event payload.
func DecodePushEvent(b []byte) (PushEvent, error) {
	var ev PushEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return PushEvent{}, fmt.Errorf("decode push event: %w", err)
	}
	return ev, nil
}
