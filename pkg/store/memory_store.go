package store

import (
	"sort"
	"sync"
	"time"

	"consultly/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	// txMu serializes whole transactions so a failing transaction's restore
	// cannot clobber writes committed by a concurrent one.
	txMu sync.Mutex

	mu       sync.RWMutex
	bookings map[string]domain.Booking
	windows  map[string]map[time.Weekday]domain.AvailabilityWindow
	notifs   []domain.Notification
	nextID   int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]domain.Booking),
		windows:  make(map[string]map[time.Weekday]domain.AvailabilityWindow),
		nextID:   1,
	}
}

func (m *MemoryStore) CreateBooking(b domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBooking(id string) (domain.Booking, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBookingsByExpert(expertID string) ([]domain.Booking, error) {
	return m.listBookings(func(b domain.Booking) bool { return b.ExpertID == expertID })
}

func (m *MemoryStore) ListBookingsBySeeker(seekerID string) ([]domain.Booking, error) {
	return m.listBookings(func(b domain.Booking) bool { return b.SeekerID == seekerID })
}

func (m *MemoryStore) listBookings(match func(domain.Booking) bool) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Booking
	for _, b := range m.bookings {
		if match(b) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartAt.After(res[j].StartAt) })
	return res, nil
}

func (m *MemoryStore) ActiveBookingsOn(expertID string, date time.Time) ([]domain.Booking, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Booking
	for _, b := range m.bookings {
		if b.ExpertID == expertID && b.Status.Active() && b.Date.UTC().Truncate(24*time.Hour).Equal(day) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartAt.Before(res[j].StartAt) })
	return res, nil
}

func (m *MemoryStore) TransitionStatus(id string, from, to domain.BookingStatus, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	if reason != "" {
		b.RejectionReason = reason
	}
	b.UpdatedAt = time.Now().UTC()
	m.bookings[id] = b
	return true, nil
}

func (m *MemoryStore) RescheduleBooking(id string, expect domain.BookingStatus, date, startAt, endAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != expect {
		return false, nil
	}
	b.Date = date.UTC()
	b.StartAt = startAt.UTC()
	b.EndAt = endAt.UTC()
	b.UpdatedAt = time.Now().UTC()
	m.bookings[id] = b
	return true, nil
}

func (m *MemoryStore) SetBookingRead(id string, role domain.UserRole, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	if role == domain.RoleExpert {
		b.ExpertRead = read
	} else {
		b.SeekerRead = read
	}
	m.bookings[id] = b
	return nil
}

func (m *MemoryStore) UpsertAvailability(w domain.AvailabilityWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDay, ok := m.windows[w.ExpertID]
	if !ok {
		byDay = make(map[time.Weekday]domain.AvailabilityWindow)
		m.windows[w.ExpertID] = byDay
	}
	byDay[w.Weekday] = w
	return nil
}

func (m *MemoryStore) GetAvailability(expertID string, weekday time.Weekday) (domain.AvailabilityWindow, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[expertID][weekday]
	return w, ok, nil
}

func (m *MemoryStore) ListAvailability(expertID string) ([]domain.AvailabilityWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.AvailabilityWindow
	for _, w := range m.windows[expertID] {
		res = append(res, w)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Weekday < res[j].Weekday })
	return res, nil
}

func (m *MemoryStore) DeleteAvailability(expertID string, weekday time.Weekday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows[expertID], weekday)
	return nil
}

func (m *MemoryStore) CreateNotification(n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.nextID
	m.nextID++
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.notifs = append(m.notifs, *n)
	return nil
}

func (m *MemoryStore) ListNotifications(userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Notification
	for i := len(m.notifs) - 1; i >= 0 && len(res) < limit; i-- {
		if m.notifs[i].UserID == userID {
			res = append(res, m.notifs[i])
		}
	}
	return res, nil
}

func (m *MemoryStore) MarkNotificationRead(id int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifs {
		if m.notifs[i].ID == id && m.notifs[i].UserID == userID {
			m.notifs[i].Read = true
		}
	}
	return nil
}

// Transaction snapshots the store, runs fn, and restores the snapshot if fn
// fails. Transactions run one at a time.
func (m *MemoryStore) Transaction(fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	bookings := make(map[string]domain.Booking, len(m.bookings))
	for k, v := range m.bookings {
		bookings[k] = v
	}
	notifs := make([]domain.Notification, len(m.notifs))
	copy(notifs, m.notifs)
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.bookings = bookings
		m.notifs = notifs
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}
