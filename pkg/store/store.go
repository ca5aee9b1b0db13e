package store

import (
	"time"

	"consultly/pkg/domain"
)

// Store defines persistence operations for bookings, availability windows,
// and notifications.
type Store interface {
	// bookings
	CreateBooking(domain.Booking) error
	GetBooking(id string) (domain.Booking, bool, error)
	ListBookingsByExpert(expertID string) ([]domain.Booking, error)
	ListBookingsBySeeker(seekerID string) ([]domain.Booking, error)
	// ActiveBookingsOn returns pending/confirmed bookings for the expert on
	// the given calendar date (UTC midnight).
	ActiveBookingsOn(expertID string, date time.Time) ([]domain.Booking, error)
	// TransitionStatus conditionally moves a booking from one status to
	// another, storing the rejection reason when non-empty. It reports
	// whether the row was in the expected status at write time.
	TransitionStatus(id string, from, to domain.BookingStatus, reason string) (bool, error)
	// RescheduleBooking conditionally replaces the date/time fields of a
	// booking observed in the expected status, leaving status unchanged.
	RescheduleBooking(id string, expect domain.BookingStatus, date, startAt, endAt time.Time) (bool, error)
	// SetBookingRead flips the read flag for one party's view of a booking.
	SetBookingRead(id string, role domain.UserRole, read bool) error

	// availability
	UpsertAvailability(domain.AvailabilityWindow) error
	GetAvailability(expertID string, weekday time.Weekday) (domain.AvailabilityWindow, bool, error)
	ListAvailability(expertID string) ([]domain.AvailabilityWindow, error)
	DeleteAvailability(expertID string, weekday time.Weekday) error

	// notifications
	CreateNotification(*domain.Notification) error
	ListNotifications(userID string, limit int) ([]domain.Notification, error)
	MarkNotificationRead(id int64, userID string) error

	// Transaction runs fn against a transactional view of the store. If fn
	// returns an error every write made inside it is rolled back.
	Transaction(fn func(Store) error) error
}
