package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tabletopreserve/tabletop/libs/auth"
	"github.com/tabletopreserve/tabletop/libs/httpx"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/booking"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

// BookingService is the part of booking.Service the HTTP layer drives.
type BookingService interface {
	CreateTableReservation(ctx context.Context, in booking.CreateReservationInput) (model.TableReservation, error)
	CreateEventBooking(ctx context.Context, in booking.CreateEventBookingInput) (model.EventBooking, error)
	Cancel(ctx context.Context, kind model.Kind, id, actorID, reason string) (model.StatusChange, error)
	Confirm(ctx context.Context, id, actorID string) (model.StatusChange, error)
	Complete(ctx context.Context, kind model.Kind, id, actorID string) (model.StatusChange, error)
	GetReservation(ctx context.Context, id string) (model.TableReservation, error)
	GetEventBooking(ctx context.Context, id string) (model.EventBooking, error)
	ListActiveBookingsForTable(ctx context.Context, tableID string, window model.Interval) ([]model.TableReservation, error)
	FreeSlots(ctx context.Context, tableID string, window model.Interval, durationHours int, step time.Duration) ([]time.Time, error)
	ListReservationsForUser(ctx context.Context, userID string, when model.When) ([]model.TableReservation, error)
	ListEventBookingsForUser(ctx context.Context, userID string, when model.When) ([]model.EventBooking, error)
}

// StaffRoles may confirm and complete bookings.
var StaffRoles = []string{"owner", "staff"}

type BookingHandler struct {
	svc    BookingService
	logger *slog.Logger
}

func NewBookingHandler(svc BookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/reservations", h.reservations)
	mux.Handle("/api/v1/reservations/cancel", auth.RequireUser(h.transition(model.KindTable, model.StatusCancelled)))
	mux.Handle("/api/v1/reservations/confirm", auth.RequireRole(h.transition(model.KindTable, model.StatusConfirmed), StaffRoles...))
	mux.Handle("/api/v1/reservations/complete", auth.RequireRole(h.transition(model.KindTable, model.StatusCompleted), StaffRoles...))
	mux.Handle("/api/v1/reservations/mine", auth.RequireUser(http.HandlerFunc(h.myReservations)))
	mux.HandleFunc("/api/v1/tables/active", h.activeForTable)
	mux.HandleFunc("/api/v1/tables/slots", h.slots)

	mux.HandleFunc("/api/v1/event-bookings", h.eventBookings)
	mux.Handle("/api/v1/event-bookings/cancel", auth.RequireUser(h.transition(model.KindEvent, model.StatusCancelled)))
	mux.Handle("/api/v1/event-bookings/complete", auth.RequireRole(h.transition(model.KindEvent, model.StatusCompleted), StaffRoles...))
	mux.Handle("/api/v1/event-bookings/mine", auth.RequireUser(http.HandlerFunc(h.myEventBookings)))
}

type contactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type createReservationRequest struct {
	ShopID        string         `json:"shop_id"`
	TableID       string         `json:"table_id"`
	TableNumber   int            `json:"table_number"`
	Start         time.Time      `json:"start"`
	DurationHours int            `json:"duration_hours"`
	PartySize     int            `json:"party_size"`
	Contact       contactRequest `json:"contact"`
	Notes         string         `json:"notes"`
}

type createEventBookingRequest struct {
	EventID      string         `json:"event_id"`
	ShopID       string         `json:"shop_id"`
	ShopName     string         `json:"shop_name"`
	EventName    string         `json:"event_name"`
	EventDate    time.Time      `json:"event_date"`
	EventTime    string         `json:"event_time"`
	Participants int            `json:"participants"`
	Contact      contactRequest `json:"contact"`
	Notes        string         `json:"notes"`
}

type transitionRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type slotItem struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *BookingHandler) reservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createReservation(w, r)
	case http.MethodGet:
		auth.RequireUser(http.HandlerFunc(h.getReservation)).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *BookingHandler) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetReservation(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !mayAccess(auth.IdentityFromContext(r.Context()), res.ShopID, res.UserID) {
		writeServiceError(w, r, h.logger, &model.NotFoundError{Kind: model.KindTable, ID: res.ID})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) getEventBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetEventBooking(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !mayAccess(auth.IdentityFromContext(r.Context()), b.ShopID, b.UserID) {
		writeServiceError(w, r, h.logger, &model.NotFoundError{Kind: model.KindEvent, ID: b.ID})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) createReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.CreateTableReservation(r.Context(), booking.CreateReservationInput{
		ShopID:         req.ShopID,
		TableID:        req.TableID,
		TableNumber:    req.TableNumber,
		UserID:         auth.IdentityFromContext(r.Context()).UserID,
		Start:          req.Start,
		DurationHours:  req.DurationHours,
		PartySize:      req.PartySize,
		Contact:        model.Contact(req.Contact),
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *BookingHandler) eventBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createEventBookingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		b, err := h.svc.CreateEventBooking(r.Context(), booking.CreateEventBookingInput{
			EventID:         req.EventID,
			ShopID:          req.ShopID,
			ShopName:        req.ShopName,
			EventName:       req.EventName,
			EventDate:       req.EventDate,
			EventTimeString: req.EventTime,
			Participants:    req.Participants,
			UserID:          auth.IdentityFromContext(r.Context()).UserID,
			Contact:         model.Contact(req.Contact),
			Notes:           req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, b)
	case http.MethodGet:
		auth.RequireUser(http.HandlerFunc(h.getEventBooking)).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *BookingHandler) transition(kind model.Kind, to model.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req transitionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		caller := auth.IdentityFromContext(r.Context())
		shopID, ownerID, err := h.bookingOwner(r.Context(), kind, req.ID)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		// Customers may cancel their own bookings; shop staff act on their shop only.
		if to == model.StatusCancelled {
			if !mayAccess(caller, shopID, ownerID) {
				writeServiceError(w, r, h.logger, &model.NotFoundError{Kind: kind, ID: req.ID})
				return
			}
		} else if !caller.ActsFor(shopID, StaffRoles...) {
			httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "booking belongs to another shop")
			return
		}

		actor := caller.UserID
		var change model.StatusChange
		switch to {
		case model.StatusCancelled:
			change, err = h.svc.Cancel(r.Context(), kind, req.ID, actor, req.Reason)
		case model.StatusConfirmed:
			change, err = h.svc.Confirm(r.Context(), req.ID, actor)
		default:
			change, err = h.svc.Complete(r.Context(), kind, req.ID, actor)
		}
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}

		if change.Reservation != nil {
			httpx.WriteJSON(w, http.StatusOK, change.Reservation)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, change.EventBooking)
	}
}

func (h *BookingHandler) myReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	when, err := model.ParseWhen(r.URL.Query().Get("when"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out, err := h.svc.ListReservationsForUser(r.Context(), auth.IdentityFromContext(r.Context()).UserID, when)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []model.TableReservation{}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *BookingHandler) myEventBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	when, err := model.ParseWhen(r.URL.Query().Get("when"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out, err := h.svc.ListEventBookingsForUser(r.Context(), auth.IdentityFromContext(r.Context()).UserID, when)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []model.EventBooking{}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *BookingHandler) activeForTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "from must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "to must be RFC3339")
		return
	}

	out, err := h.svc.ListActiveBookingsForTable(r.Context(), q.Get("table_id"), model.Interval{Start: from, End: to})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []model.TableReservation{}
	}
	caller := auth.IdentityFromContext(r.Context())
	for i, res := range out {
		if !caller.ActsFor(res.ShopID, StaffRoles...) {
			out[i] = busyView(res)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// slots lists free start times of a table on one day between open and close
// (HH:MM, in the optional tz location).
func (h *BookingHandler) slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "unknown tz")
			return
		}
		loc = l
	}
	day, err := time.ParseInLocation("2006-01-02", q.Get("date"), loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "date must be YYYY-MM-DD")
		return
	}
	open, err := clockOffset(q.Get("open"), 10*time.Hour)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "open must be HH:MM")
		return
	}
	closing, err := clockOffset(q.Get("close"), 22*time.Hour)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "close must be HH:MM")
		return
	}
	hours, ok := boundedInt(q.Get("duration_hours"), 1, 1, booking.MaxSlotDurationHours)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "duration_hours must be between 1 and 24")
		return
	}
	stepMinutes, ok := boundedInt(q.Get("step_minutes"), 60, 5, 24*60)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "step_minutes must be between 5 and 1440")
		return
	}
	step := time.Duration(stepMinutes) * time.Minute

	window := model.Interval{Start: day.Add(open), End: day.Add(closing)}
	starts, err := h.svc.FreeSlots(r.Context(), q.Get("table_id"), window, hours, step)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		resp = append(resp, slotItem{Start: s, End: s.Add(time.Duration(hours) * time.Hour)})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidBody, "invalid json body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, httpx.CodeMethodNotAllowed, "method not allowed")
}

func clockOffset(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// boundedInt parses an optional integer parameter and checks it against
// [min, max].
func boundedInt(raw string, fallback, min, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

func (h *BookingHandler) bookingOwner(ctx context.Context, kind model.Kind, id string) (shopID, userID string, err error) {
	if kind == model.KindEvent {
		b, err := h.svc.GetEventBooking(ctx, id)
		return b.ShopID, b.UserID, err
	}
	res, err := h.svc.GetReservation(ctx, id)
	return res.ShopID, res.UserID, err
}

// mayAccess admits the signed-in owner of a booking and the staff of its shop.
func mayAccess(caller auth.Identity, shopID, ownerID string) bool {
	if caller.ActsFor(shopID, StaffRoles...) {
		return true
	}
	return !caller.Anonymous() && ownerID != "" && caller.UserID == ownerID
}

// busyView hides who booked a table from callers outside the shop.
func busyView(r model.TableReservation) model.TableReservation {
	return model.TableReservation{
		ShopID:        r.ShopID,
		TableID:       r.TableID,
		TableNumber:   r.TableNumber,
		Start:         r.Start,
		DurationHours: r.DurationHours,
		PartySize:     r.PartySize,
		Status:        r.Status,
	}
}
