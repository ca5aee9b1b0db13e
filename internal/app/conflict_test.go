package app

import (
	"testing"
	"time"

	"consultly/pkg/domain"
	"consultly/pkg/store"
)

func seedBooking(t *testing.T, st *store.MemoryStore, id string, status domain.BookingStatus, startH, endH int) {
	t.Helper()
	err := st.CreateBooking(domain.Booking{
		ID:       id,
		ExpertID: expert.UserID,
		SeekerID: seeker.UserID,
		Date:     monday,
		StartAt:  monday.Add(time.Duration(startH) * time.Hour),
		EndAt:    monday.Add(time.Duration(endH) * time.Hour),
		Kind:     domain.KindVideo,
		Status:   status,
	})
	if err != nil {
		t.Fatalf("seed booking %s: %v", id, err)
	}
}

func TestIsFreeOverlapEdges(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	seedBooking(t, st, "busy", domain.StatusConfirmed, 10, 12)

	cases := []struct {
		name         string
		startH, endH int
		free         bool
	}{
		{name: "identical range", startH: 10, endH: 12, free: false},
		{name: "contained", startH: 10, endH: 11, free: false},
		{name: "containing", startH: 9, endH: 13, free: false},
		{name: "overlap left edge", startH: 9, endH: 11, free: false},
		{name: "overlap right edge", startH: 11, endH: 13, free: false},
		{name: "touching before", startH: 8, endH: 10, free: true},
		{name: "touching after", startH: 12, endH: 14, free: true},
		{name: "fully before", startH: 7, endH: 8, free: true},
		{name: "fully after", startH: 14, endH: 15, free: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			start := monday.Add(time.Duration(c.startH) * time.Hour)
			end := monday.Add(time.Duration(c.endH) * time.Hour)
			free, err := engine.IsFree(expert.UserID, monday, start, end, "")
			if err != nil {
				t.Fatalf("IsFree: %v", err)
			}
			if free != c.free {
				t.Fatalf("free = %v, want %v", free, c.free)
			}
		})
	}
}

func TestIsFreeIgnoresTerminalBookings(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	seedBooking(t, st, "cancelled", domain.StatusCancelled, 10, 12)
	seedBooking(t, st, "rejected", domain.StatusRejected, 13, 14)
	seedBooking(t, st, "completed", domain.StatusCompleted, 15, 16)

	free, err := engine.IsFree(expert.UserID, monday, monday.Add(10*time.Hour), monday.Add(16*time.Hour), "")
	if err != nil {
		t.Fatalf("IsFree: %v", err)
	}
	if !free {
		t.Fatal("terminal bookings must not occupy the calendar")
	}
}

func TestIsFreeExclusion(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	seedBooking(t, st, "self", domain.StatusPending, 10, 11)

	free, err := engine.IsFree(expert.UserID, monday, monday.Add(10*time.Hour), monday.Add(11*time.Hour), "self")
	if err != nil {
		t.Fatalf("IsFree: %v", err)
	}
	if !free {
		t.Fatal("a booking must not conflict with itself")
	}

	free, _ = engine.IsFree(expert.UserID, monday, monday.Add(10*time.Hour), monday.Add(11*time.Hour), "")
	if free {
		t.Fatal("without exclusion the slot is taken")
	}
}

func TestIsFreeOtherDay(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	seedBooking(t, st, "busy", domain.StatusConfirmed, 10, 12)

	tuesday := monday.Add(24 * time.Hour)
	free, err := engine.IsFree(expert.UserID, tuesday, tuesday.Add(10*time.Hour), tuesday.Add(12*time.Hour), "")
	if err != nil {
		t.Fatalf("IsFree: %v", err)
	}
	if !free {
		t.Fatal("bookings on another day must not conflict")
	}
}
