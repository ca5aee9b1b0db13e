package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"consultly/internal/usertoken"
	"consultly/pkg/domain"
	"consultly/pkg/store"
)

// Notifier records durable notification rows and performs best-effort
// delivery. Record runs inside the engine's store transaction so a failed
// insert rolls the whole lifecycle transition back; Deliver never fails the
// caller.
type Notifier interface {
	Record(s store.Store, n *domain.Notification) error
	Deliver(ctx context.Context, n domain.Notification)
}

// Config wires the engine's dependencies.
type Config struct {
	Store    store.Store
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine owns every state transition of a booking. All writes on a given
// booking id serialize through a keyed mutex, and the store-level writes are
// additionally conditioned on the status observed under that lock.
type Engine struct {
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*bookingLock
}

// bookingLock is reference counted so the lock map does not grow with every
// booking id ever touched; the entry is evicted when the last holder leaves.
type bookingLock struct {
	mu   sync.Mutex
	refs int
}

// New constructs the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		logger:   logger,
		now:      now,
		locks:    make(map[string]*bookingLock),
	}, nil
}

// lockBooking serializes writers on one booking id and returns the release
// function.
func (e *Engine) lockBooking(id string) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &bookingLock{}
		e.locks[id] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

// CreateRequest carries a seeker's booking request. StartAt/EndAt must fall
// on the same UTC calendar day.
type CreateRequest struct {
	ExpertID string
	StartAt  time.Time
	EndAt    time.Time
	Kind     domain.SessionKind
	Amount   float64
	Note     string
}

// Create validates a request against the expert's availability and calendar,
// inserts a pending booking, and notifies both parties.
func (e *Engine) Create(ctx context.Context, actor usertoken.Identity, req CreateRequest) (domain.Booking, error) {
	if actor.Role != domain.RoleSeeker {
		return domain.Booking{}, statef("only seekers can request bookings")
	}
	if strings.TrimSpace(req.ExpertID) == "" {
		return domain.Booking{}, validationf("expertId is required")
	}
	if req.ExpertID == actor.UserID {
		return domain.Booking{}, validationf("cannot book a session with yourself")
	}
	if !req.Kind.Valid() {
		return domain.Booking{}, validationf("sessionType must be audio, video, or chat")
	}
	if req.Amount < 0 {
		return domain.Booking{}, validationf("amount must not be negative")
	}
	start, end, date, err := normalizeRange(req.StartAt, req.EndAt)
	if err != nil {
		return domain.Booking{}, err
	}

	inWindow, err := e.withinAvailability(req.ExpertID, start, end)
	if err != nil {
		return domain.Booking{}, err
	}
	if !inWindow {
		return domain.Booking{}, conflictf("requested time is outside the expert's availability")
	}
	free, err := e.IsFree(req.ExpertID, date, start, end, "")
	if err != nil {
		return domain.Booking{}, err
	}
	if !free {
		return domain.Booking{}, conflictf("slot overlaps an existing booking")
	}

	now := e.now()
	booking := domain.Booking{
		ID:        uuid.NewString(),
		ExpertID:  req.ExpertID,
		SeekerID:  actor.UserID,
		Date:      date,
		StartAt:   start,
		EndAt:     end,
		Kind:      req.Kind,
		Status:    domain.StatusPending,
		Amount:    req.Amount,
		Note:      req.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	notifs := []domain.Notification{
		e.notification(booking.ExpertID, domain.NotifyBookingRequest,
			fmt.Sprintf("New %s session request for %s", booking.Kind, humanRange(booking)), booking),
		e.notification(booking.SeekerID, domain.NotifyMessage,
			fmt.Sprintf("Your booking request for %s was sent", humanRange(booking)), booking),
	}
	err = e.store.Transaction(func(tx store.Store) error {
		if err := tx.CreateBooking(booking); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return e.record(tx, notifs)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	e.deliver(ctx, notifs)
	return booking, nil
}

// Accept confirms a pending booking. Only the expert who owns it may accept.
func (e *Engine) Accept(ctx context.Context, actor usertoken.Identity, bookingID string) (domain.Booking, error) {
	unlock := e.lockBooking(bookingID)
	defer unlock()

	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if actor.UserID != booking.ExpertID {
		return domain.Booking{}, statef("only the expert can accept this booking")
	}
	if booking.Status != domain.StatusPending {
		return domain.Booking{}, statef(fmt.Sprintf("cannot accept a %s booking", booking.Status))
	}

	notifs := []domain.Notification{
		e.notification(booking.SeekerID, domain.NotifyBookingAccepted,
			fmt.Sprintf("Your %s session for %s was accepted", booking.Kind, humanRange(booking)), booking),
	}
	err = e.store.Transaction(func(tx store.Store) error {
		ok, err := tx.TransitionStatus(bookingID, domain.StatusPending, domain.StatusConfirmed, "")
		if err != nil {
			return fmt.Errorf("confirm booking: %w", err)
		}
		if !ok {
			return statef("booking state changed, retry")
		}
		return e.record(tx, notifs)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	e.deliver(ctx, notifs)
	booking.Status = domain.StatusConfirmed
	booking.UpdatedAt = e.now()
	return booking, nil
}

// Reject declines a pending booking with a mandatory reason, stored and
// delivered to the seeker verbatim.
func (e *Engine) Reject(ctx context.Context, actor usertoken.Identity, bookingID, reason string) (domain.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Booking{}, validationf("a rejection reason is required")
	}

	unlock := e.lockBooking(bookingID)
	defer unlock()

	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if actor.UserID != booking.ExpertID {
		return domain.Booking{}, statef("only the expert can reject this booking")
	}
	if booking.Status != domain.StatusPending {
		return domain.Booking{}, statef(fmt.Sprintf("cannot reject a %s booking", booking.Status))
	}

	notifs := []domain.Notification{
		e.notification(booking.SeekerID, domain.NotifyBookingRejected, reason, booking),
	}
	err = e.store.Transaction(func(tx store.Store) error {
		ok, err := tx.TransitionStatus(bookingID, domain.StatusPending, domain.StatusRejected, reason)
		if err != nil {
			return fmt.Errorf("reject booking: %w", err)
		}
		if !ok {
			return statef("booking state changed, retry")
		}
		return e.record(tx, notifs)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	e.deliver(ctx, notifs)
	booking.Status = domain.StatusRejected
	booking.RejectionReason = reason
	booking.UpdatedAt = e.now()
	return booking, nil
}

// Cancel withdraws a pending or confirmed booking. Either party may cancel;
// the counterpart is notified.
func (e *Engine) Cancel(ctx context.Context, actor usertoken.Identity, bookingID string) (domain.Booking, error) {
	unlock := e.lockBooking(bookingID)
	defer unlock()

	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !booking.Participant(actor.UserID) {
		return domain.Booking{}, statef("only a participant can cancel this booking")
	}
	if !booking.Status.Active() {
		return domain.Booking{}, statef(fmt.Sprintf("cannot cancel a %s booking", booking.Status))
	}

	observed := booking.Status
	notifs := []domain.Notification{
		e.notification(booking.Counterpart(actor.UserID), domain.NotifyBookingCancelled,
			fmt.Sprintf("The %s session for %s was cancelled", booking.Kind, humanRange(booking)), booking),
	}
	err = e.store.Transaction(func(tx store.Store) error {
		ok, err := tx.TransitionStatus(bookingID, observed, domain.StatusCancelled, "")
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if !ok {
			return statef("booking state changed, retry")
		}
		return e.record(tx, notifs)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	e.deliver(ctx, notifs)
	booking.Status = domain.StatusCancelled
	booking.UpdatedAt = e.now()
	return booking, nil
}

// Reschedule replaces the date/time of a pending or confirmed booking,
// leaving the status unchanged. The conflict check excludes the booking
// itself and re-runs under the per-booking lock to close the race with a
// concurrently accepted booking.
func (e *Engine) Reschedule(ctx context.Context, actor usertoken.Identity, bookingID string, newStart, newEnd time.Time) (domain.Booking, error) {
	start, end, date, err := normalizeRange(newStart, newEnd)
	if err != nil {
		return domain.Booking{}, err
	}

	unlock := e.lockBooking(bookingID)
	defer unlock()

	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !booking.Participant(actor.UserID) {
		return domain.Booking{}, statef("only a participant can reschedule this booking")
	}
	if !booking.Status.Active() {
		return domain.Booking{}, statef(fmt.Sprintf("cannot reschedule a %s booking", booking.Status))
	}

	inWindow, err := e.withinAvailability(booking.ExpertID, start, end)
	if err != nil {
		return domain.Booking{}, err
	}
	if !inWindow {
		return domain.Booking{}, conflictf("requested time is outside the expert's availability")
	}
	free, err := e.IsFree(booking.ExpertID, date, start, end, booking.ID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !free {
		return domain.Booking{}, conflictf("slot overlaps an existing booking")
	}

	observed := booking.Status
	moved := booking
	moved.Date = date
	moved.StartAt = start
	moved.EndAt = end
	notifs := []domain.Notification{
		e.notification(booking.SeekerID, domain.NotifyBookingRescheduled,
			fmt.Sprintf("The %s session moved to %s", booking.Kind, humanRange(moved)), moved),
		e.notification(booking.ExpertID, domain.NotifyBookingRescheduled,
			fmt.Sprintf("The %s session moved to %s", booking.Kind, humanRange(moved)), moved),
	}
	err = e.store.Transaction(func(tx store.Store) error {
		ok, err := tx.RescheduleBooking(bookingID, observed, date, start, end)
		if err != nil {
			return fmt.Errorf("reschedule booking: %w", err)
		}
		if !ok {
			return statef("booking state changed, retry")
		}
		return e.record(tx, notifs)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	e.deliver(ctx, notifs)
	moved.UpdatedAt = e.now()
	return moved, nil
}

// Complete converges a confirmed booking's stored status with its effective
// status once the session is over. Only the expert completes.
func (e *Engine) Complete(ctx context.Context, actor usertoken.Identity, bookingID string) (domain.Booking, error) {
	unlock := e.lockBooking(bookingID)
	defer unlock()

	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if actor.UserID != booking.ExpertID {
		return domain.Booking{}, statef("only the expert can complete this booking")
	}
	if booking.Status != domain.StatusConfirmed {
		return domain.Booking{}, statef(fmt.Sprintf("cannot complete a %s booking", booking.Status))
	}

	notifs := []domain.Notification{
		e.notification(booking.SeekerID, domain.NotifyMessage,
			fmt.Sprintf("Your %s session for %s is complete", booking.Kind, humanRange(booking)), booking),
	}
	err = e.store.Transaction(func(tx store.Store) error {
		ok, err := tx.TransitionStatus(bookingID, domain.StatusConfirmed, domain.StatusCompleted, "")
		if err != nil {
			return fmt.Errorf("complete booking: %w", err)
		}
		if !ok {
			return statef("booking state changed, retry")
		}
		return e.record(tx, notifs)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	e.deliver(ctx, notifs)
	booking.Status = domain.StatusCompleted
	booking.UpdatedAt = e.now()
	return booking, nil
}

// MarkRead flips the actor's read flag on a booking. Idempotent; no
// notification is emitted.
func (e *Engine) MarkRead(actor usertoken.Identity, bookingID string) error {
	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return err
	}
	if !booking.Participant(actor.UserID) {
		return statef("only a participant can mark this booking read")
	}
	role := domain.RoleSeeker
	if actor.UserID == booking.ExpertID {
		role = domain.RoleExpert
	}
	return e.store.SetBookingRead(bookingID, role, true)
}

// BookingView pairs a booking with its display-facing effective status so
// consumers never re-derive it.
type BookingView struct {
	domain.Booking
	EffectiveStatus domain.BookingStatus `json:"effectiveStatus"`
}

// GetBooking returns one booking visible to the actor.
func (e *Engine) GetBooking(actor usertoken.Identity, bookingID string) (BookingView, error) {
	booking, err := e.loadBooking(bookingID)
	if err != nil {
		return BookingView{}, err
	}
	if !booking.Participant(actor.UserID) {
		return BookingView{}, statef("not a participant of this booking")
	}
	return BookingView{Booking: booking, EffectiveStatus: domain.EffectiveStatus(booking, e.now())}, nil
}

// ListBookings returns the actor's bookings with derived effective status.
func (e *Engine) ListBookings(actor usertoken.Identity) ([]BookingView, error) {
	var (
		bookings []domain.Booking
		err      error
	)
	if actor.Role == domain.RoleExpert {
		bookings, err = e.store.ListBookingsByExpert(actor.UserID)
	} else {
		bookings, err = e.store.ListBookingsBySeeker(actor.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	now := e.now()
	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, BookingView{Booking: b, EffectiveStatus: domain.EffectiveStatus(b, now)})
	}
	return views, nil
}

// Counts summarizes the actor's calendar for dashboard headers.
type Counts struct {
	Upcoming int `json:"upcoming"`
	Past     int `json:"past"`
}

// CountBookings returns upcoming/past totals derived from effective status.
func (e *Engine) CountBookings(actor usertoken.Identity) (Counts, error) {
	views, err := e.ListBookings(actor)
	if err != nil {
		return Counts{}, err
	}
	now := e.now()
	var c Counts
	for _, v := range views {
		if v.EffectiveStatus.Active() && v.EndAt.After(now) {
			c.Upcoming++
		} else {
			c.Past++
		}
	}
	return c, nil
}

// SetAvailability creates or replaces the actor's window for one weekday.
// Clock values are "HH:MM".
func (e *Engine) SetAvailability(actor usertoken.Identity, weekday time.Weekday, startClock, endClock string) (domain.AvailabilityWindow, error) {
	if actor.Role != domain.RoleExpert {
		return domain.AvailabilityWindow{}, statef("only experts manage availability")
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return domain.AvailabilityWindow{}, validationf("dayOfWeek must be 0-6")
	}
	start, err := domain.ParseClock(startClock)
	if err != nil {
		return domain.AvailabilityWindow{}, validationf(err.Error())
	}
	end, err := domain.ParseClock(endClock)
	if err != nil {
		return domain.AvailabilityWindow{}, validationf(err.Error())
	}
	if start >= end {
		return domain.AvailabilityWindow{}, validationf("start time must be before end time")
	}
	window := domain.AvailabilityWindow{
		ExpertID:    actor.UserID,
		Weekday:     weekday,
		StartMinute: start,
		EndMinute:   end,
	}
	if err := e.store.UpsertAvailability(window); err != nil {
		return domain.AvailabilityWindow{}, fmt.Errorf("save availability: %w", err)
	}
	return window, nil
}

// RemoveAvailability deletes the actor's window for one weekday.
func (e *Engine) RemoveAvailability(actor usertoken.Identity, weekday time.Weekday) error {
	if actor.Role != domain.RoleExpert {
		return statef("only experts manage availability")
	}
	return e.store.DeleteAvailability(actor.UserID, weekday)
}

// Availability lists the configured windows for an expert.
func (e *Engine) Availability(expertID string) ([]domain.AvailabilityWindow, error) {
	return e.store.ListAvailability(expertID)
}

// Notifications returns the actor's notifications, newest first.
func (e *Engine) Notifications(actor usertoken.Identity, limit int) ([]domain.Notification, error) {
	return e.store.ListNotifications(actor.UserID, limit)
}

// MarkNotificationRead flips the read flag on one of the actor's
// notifications. Idempotent.
func (e *Engine) MarkNotificationRead(actor usertoken.Identity, id int64) error {
	return e.store.MarkNotificationRead(id, actor.UserID)
}

// EffectiveStatus exposes the pure derivation for external consumers.
func (e *Engine) EffectiveStatus(b domain.Booking) domain.BookingStatus {
	return domain.EffectiveStatus(b, e.now())
}

func (e *Engine) loadBooking(id string) (domain.Booking, error) {
	booking, ok, err := e.store.GetBooking(id)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("load booking: %w", err)
	}
	if !ok {
		return domain.Booking{}, ErrNotFound
	}
	return booking, nil
}

func (e *Engine) notification(userID string, typ domain.NotificationType, message string, b domain.Booking) domain.Notification {
	return domain.Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		RelatedID: b.ID,
		Data: map[string]string{
			"bookingId":   b.ID,
			"status":      string(b.Status),
			"sessionType": string(b.Kind),
			"startAt":     b.StartAt.UTC().Format(time.RFC3339),
			"endAt":       b.EndAt.UTC().Format(time.RFC3339),
		},
		CreatedAt: e.now(),
	}
}

func (e *Engine) record(tx store.Store, notifs []domain.Notification) error {
	for i := range notifs {
		if err := e.notifier.Record(tx, &notifs[i]); err != nil {
			return fmt.Errorf("record notification: %w", err)
		}
	}
	return nil
}

func (e *Engine) deliver(ctx context.Context, notifs []domain.Notification) {
	for _, n := range notifs {
		e.notifier.Deliver(ctx, n)
	}
}

func normalizeRange(startAt, endAt time.Time) (start, end, date time.Time, err error) {
	start = startAt.UTC()
	end = endAt.UTC()
	if start.IsZero() || end.IsZero() {
		return start, end, date, validationf("start and end times are required")
	}
	if !start.Before(end) {
		return start, end, date, validationf("start time must be before end time")
	}
	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return start, end, date, validationf("a session must start and end on the same day")
	}
	date = time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	return start, end, date, nil
}

func humanRange(b domain.Booking) string {
	return fmt.Sprintf("%s–%s", b.StartAt.UTC().Format("Mon Jan 2 15:04"), b.EndAt.UTC().Format("15:04"))
}
