package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"consultly/internal/app"
	"consultly/internal/gateway"
	"consultly/internal/push"
	"consultly/internal/session"
	"consultly/internal/usertoken"
	"consultly/internal/util"
	"consultly/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Engine        *app.Engine
	Hub           *gateway.Hub
	TokenVerifier *usertoken.Verifier
	CallTokens    *session.Issuer
	PushTokens    *push.TokenStore
}

// Server exposes the HTTP API consumed by the presentation layer.
type Server struct {
	engine     *app.Engine
	hub        *gateway.Hub
	verifier   *usertoken.Verifier
	callTokens *session.Issuer
	pushTokens *push.TokenStore
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		engine:     cfg.Engine,
		hub:        cfg.Hub,
		verifier:   cfg.TokenVerifier,
		callTokens: cfg.CallTokens,
		pushTokens: cfg.PushTokens,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("consultly", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWS)

	s.mux.Handle("GET /bookings", s.withUser(s.handleListBookings))
	s.mux.Handle("POST /bookings", s.withUser(s.handleCreateBooking))
	s.mux.Handle("GET /bookings/{id}", s.withUser(s.handleGetBooking))
	s.mux.Handle("POST /bookings/{id}/accept", s.withUser(s.handleAccept))
	s.mux.Handle("POST /bookings/{id}/reject", s.withUser(s.handleReject))
	s.mux.Handle("POST /bookings/{id}/reschedule", s.withUser(s.handleReschedule))
	s.mux.Handle("POST /bookings/{id}/cancel", s.withUser(s.handleCancel))
	s.mux.Handle("POST /bookings/{id}/complete", s.withUser(s.handleComplete))
	s.mux.Handle("POST /bookings/{id}/read", s.withUser(s.handleMarkRead))
	s.mux.Handle("POST /bookings/{id}/call-token", s.withUser(s.handleCallToken))

	s.mux.Handle("GET /notifications", s.withUser(s.handleListNotifications))
	s.mux.Handle("POST /notifications/{id}/read", s.withUser(s.handleNotificationRead))

	s.mux.Handle("GET /availability", s.withUser(s.handleListAvailability))
	s.mux.Handle("PUT /availability", s.withUser(s.handleSetAvailability))
	s.mux.Handle("DELETE /availability/{day}", s.withUser(s.handleDeleteAvailability))

	s.mux.Handle("POST /push/token", s.withUser(s.handleRegisterPushToken))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live gateway not configured")
		return
	}
	s.hub.HandleWS(w, r)
}

type userHandler func(http.ResponseWriter, *http.Request, usertoken.Identity)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ident, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, ident)
	})
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	views, err := s.engine.ListBookings(ident)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	counts, err := s.engine.CountBookings(ident)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": views, "counts": counts})
}

type createBookingRequest struct {
	ExpertID    string  `json:"expertId"`
	Date        string  `json:"date"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
	SessionType string  `json:"sessionType"`
	Amount      float64 `json:"amount"`
	Notes       string  `json:"notes"`
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	var req createBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	booking, err := s.engine.Create(r.Context(), ident, app.CreateRequest{
		ExpertID: req.ExpertID,
		StartAt:  start,
		EndAt:    end,
		Kind:     domain.SessionKind(req.SessionType),
		Amount:   req.Amount,
		Note:     req.Notes,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	view, err := s.engine.GetBooking(ident, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	booking, err := s.engine.Accept(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	booking, err := s.engine.Reject(r.Context(), ident, r.PathValue("id"), req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type rescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	var req rescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	booking, err := s.engine.Reschedule(r.Context(), ident, r.PathValue("id"), start, end)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	booking, err := s.engine.Cancel(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	booking, err := s.engine.Complete(r.Context(), ident, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	if err := s.engine.MarkRead(ident, r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (s *Server) handleCallToken(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	if s.callTokens == nil {
		writeError(w, http.StatusServiceUnavailable, "call provider not configured")
		return
	}
	view, err := s.engine.GetBooking(ident, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	token, rejoin, err := s.callTokens.IssueCallToken(r.Context(), view.Booking, ident.UserID)
	if err != nil {
		if errors.Is(err, session.ErrJoinNotAllowed) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "call provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"channelId": view.ID,
		"uid":       session.NumericUID(ident.UserID),
		"rejoin":    rejoin,
	})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	notifs, err := s.engine.Notifications(ident, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if notifs == nil {
		notifs = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifs})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.engine.MarkNotificationRead(ident, id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (s *Server) handleListAvailability(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	expertID := r.URL.Query().Get("expertId")
	if expertID == "" {
		expertID = ident.UserID
	}
	windows, err := s.engine.Availability(expertID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if windows == nil {
		windows = []domain.AvailabilityWindow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": windows})
}

type availabilityRequest struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	var req availabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	window, err := s.engine.SetAvailability(ident, time.Weekday(req.DayOfWeek), req.StartTime, req.EndTime)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (s *Server) handleDeleteAvailability(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil || day < 0 || day > 6 {
		writeError(w, http.StatusBadRequest, "invalid day of week")
		return
	}
	if err := s.engine.RemoveAvailability(ident, time.Weekday(day)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRegisterPushToken(w http.ResponseWriter, r *http.Request, ident usertoken.Identity) {
	if s.pushTokens == nil {
		writeError(w, http.StatusServiceUnavailable, "push registry not configured")
		return
	}
	var req pushTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := s.pushTokens.Register(r.Context(), ident.UserID, req.Token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register push token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// parseSlot combines a "2006-01-02" date with "HH:MM" clock values into UTC
// instants on that day.
func parseSlot(date, startClock, endClock string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	start, err := domain.ParseClock(startClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := domain.ParseClock(endClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.Add(time.Duration(start) * time.Minute), day.Add(time.Duration(end) * time.Minute), nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	var (
		validationErr *app.ValidationError
		conflictErr   *app.ConflictError
		stateErr      *app.StateError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Reason)
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, conflictErr.Reason)
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, stateErr.Reason)
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return "", false
	}
	return authHeader[len(prefix):], true
}
