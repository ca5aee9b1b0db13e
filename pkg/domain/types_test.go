package domain

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	b := Booking{Status: StatusConfirmed, StartAt: start, EndAt: end}

	if got := EffectiveStatus(b, end.Add(-time.Minute)); got != StatusConfirmed {
		t.Fatalf("before end: got %s, want confirmed", got)
	}
	if got := EffectiveStatus(b, end); got != StatusCompleted {
		t.Fatalf("at end: got %s, want completed", got)
	}
	if got := EffectiveStatus(b, end.Add(time.Hour)); got != StatusCompleted {
		t.Fatalf("after end: got %s, want completed", got)
	}

	// Only confirmed bookings derive; a pending booking past its end stays
	// pending.
	b.Status = StatusPending
	if got := EffectiveStatus(b, end.Add(time.Hour)); got != StatusPending {
		t.Fatalf("pending past end: got %s, want pending", got)
	}
	b.Status = StatusCancelled
	if got := EffectiveStatus(b, end.Add(time.Hour)); got != StatusCancelled {
		t.Fatalf("cancelled past end: got %s, want cancelled", got)
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []BookingStatus{StatusCompleted, StatusCancelled, StatusRejected} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.Active() {
			t.Errorf("%s should not be active", s)
		}
	}
	for _, s := range []BookingStatus{StatusPending, StatusConfirmed} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{" 10:30 ", 630, false},
		{"24:00", 0, true},
		{"10:60", 0, true},
		{"1000", 0, true},
		{"", 0, true},
		{"ab:cd", 0, true},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseClock(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(540); got != "09:00" {
		t.Fatalf("got %q, want 09:00", got)
	}
	if got := FormatClock(1439); got != "23:59" {
		t.Fatalf("got %q, want 23:59", got)
	}
}

func TestAvailabilityWindowContains(t *testing.T) {
	// Monday 09:00-17:00.
	w := AvailabilityWindow{ExpertID: "e1", Weekday: time.Monday, StartMinute: 540, EndMinute: 1020}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	at := func(h, m int) time.Time { return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	if !w.Contains(at(9, 0), at(10, 0)) {
		t.Fatal("range at window start should fit")
	}
	if !w.Contains(at(16, 0), at(17, 0)) {
		t.Fatal("range ending at window end should fit")
	}
	if w.Contains(at(8, 30), at(9, 30)) {
		t.Fatal("range starting before window should not fit")
	}
	if w.Contains(at(16, 30), at(17, 30)) {
		t.Fatal("range ending after window should not fit")
	}
	tuesday := monday.Add(24 * time.Hour)
	if w.Contains(tuesday.Add(10*time.Hour), tuesday.Add(11*time.Hour)) {
		t.Fatal("wrong weekday should not fit")
	}
	if w.Contains(at(23, 0), tuesday.Add(1*time.Hour)) {
		t.Fatal("midnight-crossing range should not fit")
	}
}

func TestBookingParticipants(t *testing.T) {
	b := Booking{ExpertID: "exp", SeekerID: "seek"}
	if !b.Participant("exp") || !b.Participant("seek") {
		t.Fatal("both parties are participants")
	}
	if b.Participant("other") {
		t.Fatal("stranger is not a participant")
	}
	if got := b.Counterpart("seek"); got != "exp" {
		t.Fatalf("counterpart of seeker = %q, want exp", got)
	}
	if got := b.Counterpart("exp"); got != "seek" {
		t.Fatalf("counterpart of expert = %q, want seek", got)
	}
}
