package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"consultly/pkg/domain"
)

var (
	sessionStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sessionEnd   = sessionStart.Add(time.Hour)
)

func confirmedBooking() domain.Booking {
	return domain.Booking{
		ID:       "b1",
		ExpertID: "exp1",
		SeekerID: "seek1",
		StartAt:  sessionStart,
		EndAt:    sessionEnd,
		Status:   domain.StatusConfirmed,
	}
}

func TestCanJoin(t *testing.T) {
	b := confirmedBooking()
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before", sessionStart.Add(-time.Hour), false},
		{"just before lead opens", sessionStart.Add(-JoinLead).Add(-time.Second), false},
		{"lead boundary", sessionStart.Add(-JoinLead), true},
		{"at start", sessionStart, true},
		{"mid session", sessionStart.Add(30 * time.Minute), true},
		{"last second", sessionEnd.Add(-time.Second), true},
		{"at end", sessionEnd, false},
		{"after end", sessionEnd.Add(time.Hour), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CanJoin(b, c.now); got != c.want {
				t.Fatalf("CanJoin at %v = %v, want %v", c.now, got, c.want)
			}
		})
	}
}

func TestCanJoinRequiresConfirmed(t *testing.T) {
	mid := sessionStart.Add(30 * time.Minute)
	for _, status := range []domain.BookingStatus{
		domain.StatusPending, domain.StatusCancelled, domain.StatusRejected, domain.StatusCompleted,
	} {
		b := confirmedBooking()
		b.Status = status
		if CanJoin(b, mid) {
			t.Errorf("CanJoin must be false for %s", status)
		}
		if WithinRejoinGrace(b, mid) {
			t.Errorf("WithinRejoinGrace must be false for %s", status)
		}
	}
}

func TestWithinRejoinGrace(t *testing.T) {
	b := confirmedBooking()
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", sessionStart.Add(-time.Second), false},
		{"at start", sessionStart, true},
		{"inside grace", sessionStart.Add(10 * time.Minute), true},
		{"last second of grace", sessionStart.Add(RejoinGrace).Add(-time.Second), true},
		{"grace boundary", sessionStart.Add(RejoinGrace), false},
		{"after grace", sessionStart.Add(RejoinGrace + time.Minute), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := WithinRejoinGrace(b, c.now); got != c.want {
				t.Fatalf("WithinRejoinGrace at %v = %v, want %v", c.now, got, c.want)
			}
		})
	}
}

type stubProvider struct {
	token string
	err   error
	calls int
}

func (p *stubProvider) IssueToken(_ context.Context, channelID string, uid uint32) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.token, nil
}

func TestIssueCallToken(t *testing.T) {
	b := confirmedBooking()
	provider := &stubProvider{token: "call-token"}
	issuer := NewIssuer(provider, func() time.Time { return sessionStart })

	token, rejoin, err := issuer.IssueCallToken(context.Background(), b, b.SeekerID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token != "call-token" {
		t.Fatalf("token = %q", token)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
	if !rejoin {
		t.Fatal("at the scheduled start the grace window is open")
	}
}

// The rejoin flag must come from the same clock reading as the grant.
func TestIssueCallTokenRejoinFlag(t *testing.T) {
	b := confirmedBooking()
	cases := []struct {
		name   string
		now    time.Time
		rejoin bool
	}{
		{"lead window before start", sessionStart.Add(-JoinLead), false},
		{"at start", sessionStart, true},
		{"inside grace", sessionStart.Add(RejoinGrace - time.Minute), true},
		{"past grace but before end", sessionStart.Add(RejoinGrace + time.Minute), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			issuer := NewIssuer(&stubProvider{token: "call-token"}, func() time.Time { return c.now })
			_, rejoin, err := issuer.IssueCallToken(context.Background(), b, b.ExpertID)
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if rejoin != c.rejoin {
				t.Fatalf("rejoin = %v, want %v", rejoin, c.rejoin)
			}
		})
	}
}

func TestIssueCallTokenRejectsNonParticipant(t *testing.T) {
	b := confirmedBooking()
	provider := &stubProvider{token: "call-token"}
	issuer := NewIssuer(provider, func() time.Time { return sessionStart })

	if _, _, err := issuer.IssueCallToken(context.Background(), b, "stranger"); !errors.Is(err, ErrJoinNotAllowed) {
		t.Fatalf("expected ErrJoinNotAllowed, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatal("provider must not be called for a stranger")
	}
}

func TestIssueCallTokenOutsideWindow(t *testing.T) {
	b := confirmedBooking()
	provider := &stubProvider{token: "call-token"}
	issuer := NewIssuer(provider, func() time.Time { return sessionStart.Add(-time.Hour) })

	if _, _, err := issuer.IssueCallToken(context.Background(), b, b.ExpertID); !errors.Is(err, ErrJoinNotAllowed) {
		t.Fatalf("expected ErrJoinNotAllowed, got %v", err)
	}
}

func TestNumericUID(t *testing.T) {
	if NumericUID("user-1") != NumericUID("user-1") {
		t.Fatal("uid must be deterministic")
	}
	if NumericUID("user-1") == NumericUID("user-2") {
		t.Fatal("different users should map to different uids")
	}
	if NumericUID("user-1") == 0 {
		t.Fatal("uid must never be zero")
	}
}
