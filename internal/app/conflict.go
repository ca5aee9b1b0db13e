package app

import (
	"fmt"
	"time"
)

// IsFree reports whether the [start, end) range is free on the expert's
// calendar for the given date. Only pending and confirmed bookings occupy a
// slot; excludeID skips the booking being rescheduled so it never conflicts
// with itself. Pure read: safe to call repeatedly, including right before a
// reschedule commit.
func (e *Engine) IsFree(expertID string, date time.Time, start, end time.Time, excludeID string) (bool, error) {
	existing, err := e.store.ActiveBookingsOn(expertID, date)
	if err != nil {
		return false, fmt.Errorf("load bookings: %w", err)
	}
	for _, b := range existing {
		if b.ID == excludeID {
			continue
		}
		if overlaps(b.StartAt, b.EndAt, start, end) {
			return false, nil
		}
	}
	return true, nil
}

// overlaps is the half-open interval test: [aStart, aEnd) ∩ [bStart, bEnd) ≠ ∅.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// withinAvailability checks the creation-path rule: the requested range must
// fall entirely inside one configured window for that expert and weekday.
func (e *Engine) withinAvailability(expertID string, start, end time.Time) (bool, error) {
	window, ok, err := e.store.GetAvailability(expertID, start.UTC().Weekday())
	if err != nil {
		return false, fmt.Errorf("load availability: %w", err)
	}
	if !ok {
		return false, nil
	}
	return window.Contains(start, end), nil
}
