package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"consultly/pkg/domain"
)

const migrateLockID int64 = 52185218

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookingModel{}, &AvailabilityModel{}, &NotificationModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateBooking inserts a new booking row.
func (s *GormStore) CreateBooking(b domain.Booking) error {
	model := bookingToModel(b)
	return s.db.Create(&model).Error
}

// GetBooking retrieves one booking.
func (s *GormStore) GetBooking(id string) (domain.Booking, bool, error) {
	var model BookingModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Booking{}, false, nil
		}
		return domain.Booking{}, false, err
	}
	return bookingFromModel(model), true, nil
}

// ListBookingsByExpert returns the expert's bookings, newest date first.
func (s *GormStore) ListBookingsByExpert(expertID string) ([]domain.Booking, error) {
	return s.listBookings("expert_id = ?", expertID)
}

// ListBookingsBySeeker returns the seeker's bookings, newest date first.
func (s *GormStore) ListBookingsBySeeker(seekerID string) ([]domain.Booking, error) {
	return s.listBookings("seeker_id = ?", seekerID)
}

func (s *GormStore) listBookings(query string, arg any) ([]domain.Booking, error) {
	var models []BookingModel
	if err := s.db.Where(query, arg).Order("start_time DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Booking, 0, len(models))
	for _, m := range models {
		res = append(res, bookingFromModel(m))
	}
	return res, nil
}

// ActiveBookingsOn returns pending/confirmed bookings for the expert on the
// given date.
func (s *GormStore) ActiveBookingsOn(expertID string, date time.Time) ([]domain.Booking, error) {
	var models []BookingModel
	err := s.db.
		Where("expert_id = ? AND date = ? AND status IN ?", expertID, date.UTC(),
			[]string{string(domain.StatusPending), string(domain.StatusConfirmed)}).
		Order("start_time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Booking, 0, len(models))
	for _, m := range models {
		res = append(res, bookingFromModel(m))
	}
	return res, nil
}

// TransitionStatus performs a status-conditioned update. The WHERE clause on
// the expected status makes the write a compare-and-swap: a concurrent
// transition that got there first leaves zero affected rows.
func (s *GormStore) TransitionStatus(id string, from, to domain.BookingStatus, reason string) (bool, error) {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if reason != "" {
		updates["rejection_reason"] = reason
	}
	res := s.db.Model(&BookingModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// RescheduleBooking replaces the date/time fields if the row still carries
// the expected status.
func (s *GormStore) RescheduleBooking(id string, expect domain.BookingStatus, date, startAt, endAt time.Time) (bool, error) {
	res := s.db.Model(&BookingModel{}).
		Where("id = ? AND status = ?", id, string(expect)).
		Updates(map[string]any{
			"date":       date.UTC(),
			"start_time": startAt.UTC(),
			"end_time":   endAt.UTC(),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// SetBookingRead flips one party's read flag.
func (s *GormStore) SetBookingRead(id string, role domain.UserRole, read bool) error {
	column := "seeker_read"
	if role == domain.RoleExpert {
		column = "expert_read"
	}
	return s.db.Model(&BookingModel{}).Where("id = ?", id).Update(column, read).Error
}

// UpsertAvailability creates or replaces the window for (expert, weekday).
func (s *GormStore) UpsertAvailability(w domain.AvailabilityWindow) error {
	model := AvailabilityModel{
		ExpertID:  w.ExpertID,
		DayOfWeek: int(w.Weekday),
		StartTime: domain.FormatClock(w.StartMinute),
		EndTime:   domain.FormatClock(w.EndMinute),
	}
	return s.db.Save(&model).Error
}

// GetAvailability returns the window configured for the weekday, if any.
func (s *GormStore) GetAvailability(expertID string, weekday time.Weekday) (domain.AvailabilityWindow, bool, error) {
	var model AvailabilityModel
	err := s.db.First(&model, "expert_id = ? AND day_of_week = ?", expertID, int(weekday)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AvailabilityWindow{}, false, nil
		}
		return domain.AvailabilityWindow{}, false, err
	}
	w, err := availabilityFromModel(model)
	if err != nil {
		return domain.AvailabilityWindow{}, false, err
	}
	return w, true, nil
}

// ListAvailability returns all windows for the expert ordered by weekday.
func (s *GormStore) ListAvailability(expertID string) ([]domain.AvailabilityWindow, error) {
	var models []AvailabilityModel
	if err := s.db.Where("expert_id = ?", expertID).Order("day_of_week ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AvailabilityWindow, 0, len(models))
	for _, m := range models {
		w, err := availabilityFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}

// DeleteAvailability removes the window for (expert, weekday).
func (s *GormStore) DeleteAvailability(expertID string, weekday time.Weekday) error {
	return s.db.Delete(&AvailabilityModel{}, "expert_id = ? AND day_of_week = ?", expertID, int(weekday)).Error
}

// CreateNotification inserts a notification row and backfills its ID.
func (s *GormStore) CreateNotification(n *domain.Notification) error {
	model := notificationToModel(*n)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	n.ID = model.ID
	n.CreatedAt = model.CreatedAt
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *GormStore) ListNotifications(userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []NotificationModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, notificationFromModel(m))
	}
	return res, nil
}

// MarkNotificationRead flips the read flag. Scoped to the recipient so one
// user cannot ack another user's notification.
func (s *GormStore) MarkNotificationRead(id int64, userID string) error {
	return s.db.Model(&NotificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_status", true).Error
}

// Transaction runs fn inside a database transaction.
func (s *GormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func bookingToModel(b domain.Booking) BookingModel {
	return BookingModel{
		ID:              b.ID,
		ExpertID:        b.ExpertID,
		SeekerID:        b.SeekerID,
		Date:            b.Date.UTC(),
		StartTime:       b.StartAt.UTC(),
		EndTime:         b.EndAt.UTC(),
		SessionType:     string(b.Kind),
		Status:          string(b.Status),
		Amount:          b.Amount,
		Notes:           b.Note,
		RejectionReason: b.RejectionReason,
		SeekerRead:      b.SeekerRead,
		ExpertRead:      b.ExpertRead,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func bookingFromModel(m BookingModel) domain.Booking {
	return domain.Booking{
		ID:              m.ID,
		ExpertID:        m.ExpertID,
		SeekerID:        m.SeekerID,
		Date:            m.Date.UTC(),
		StartAt:         m.StartTime.UTC(),
		EndAt:           m.EndTime.UTC(),
		Kind:            domain.SessionKind(m.SessionType),
		Status:          domain.BookingStatus(m.Status),
		Amount:          m.Amount,
		Note:            m.Notes,
		RejectionReason: m.RejectionReason,
		SeekerRead:      m.SeekerRead,
		ExpertRead:      m.ExpertRead,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func availabilityFromModel(m AvailabilityModel) (domain.AvailabilityWindow, error) {
	start, err := domain.ParseClock(m.StartTime)
	if err != nil {
		return domain.AvailabilityWindow{}, fmt.Errorf("availability %s/%d: %w", m.ExpertID, m.DayOfWeek, err)
	}
	end, err := domain.ParseClock(m.EndTime)
	if err != nil {
		return domain.AvailabilityWindow{}, fmt.Errorf("availability %s/%d: %w", m.ExpertID, m.DayOfWeek, err)
	}
	return domain.AvailabilityWindow{
		ExpertID:    m.ExpertID,
		Weekday:     time.Weekday(m.DayOfWeek),
		StartMinute: start,
		EndMinute:   end,
	}, nil
}

func notificationToModel(n domain.Notification) NotificationModel {
	var related *string
	if n.RelatedID != "" {
		value := n.RelatedID
		related = &value
	}
	var data []byte
	if len(n.Data) > 0 {
		data, _ = json.Marshal(n.Data)
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return NotificationModel{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       string(n.Type),
		Message:    n.Message,
		RelatedID:  related,
		Data:       data,
		ReadStatus: n.Read,
		CreatedAt:  createdAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	related := ""
	if m.RelatedID != nil {
		related = *m.RelatedID
	}
	var data map[string]string
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return domain.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Type:      domain.NotificationType(m.Type),
		Message:   m.Message,
		RelatedID: related,
		Data:      data,
		Read:      m.ReadStatus,
		CreatedAt: m.CreatedAt,
	}
}
