package booking

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tabletopreserve/tabletop/services/booking-service/internal/availability"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/clock"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

type Service struct {
	repo     Repository
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(repo Repository, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		clock:  clk,
		logger: slog.Default(),
		tracer: otel.Tracer("booking-service/booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateReservationInput struct {
	ShopID         string
	TableID        string
	TableNumber    int
	UserID         string
	Start          time.Time
	DurationHours  int
	PartySize      int
	Contact        model.Contact
	Notes          string
	IdempotencyKey string
}

// validate fails fast on the first violation.
func (in CreateReservationInput) validate(now time.Time) error {
	switch {
	case !in.Start.After(now):
		return &model.ValidationError{Field: "start", Reason: "must be in the future"}
	case in.DurationHours < 1:
		return &model.ValidationError{Field: "duration_hours", Reason: "must be at least 1"}
	case in.PartySize < 1:
		return &model.ValidationError{Field: "party_size", Reason: "must be at least 1"}
	case strings.TrimSpace(in.Contact.Name) == "":
		return &model.ValidationError{Field: "contact.name", Reason: "is required"}
	case strings.TrimSpace(in.Contact.Phone) == "":
		return &model.ValidationError{Field: "contact.phone", Reason: "is required"}
	case strings.TrimSpace(in.ShopID) == "":
		return &model.ValidationError{Field: "shop_id", Reason: "is required"}
	case strings.TrimSpace(in.TableID) == "":
		return &model.ValidationError{Field: "table_id", Reason: "is required"}
	case in.TableNumber < 0:
		return &model.ValidationError{Field: "table_number", Reason: "must not be negative"}
	}
	return nil
}

// CreateTableReservation books a table as pending. The overlap check and the
// insert run under one table lock, so two active reservations of a table never
// overlap. A repeated IdempotencyKey from the same creator returns the stored
// reservation.
func (s *Service) CreateTableReservation(ctx context.Context, in CreateReservationInput) (model.TableReservation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateTableReservation", trace.WithAttributes(
		attribute.String("shop.id", in.ShopID),
		attribute.String("table.id", in.TableID),
	))
	defer span.End()

	now := s.clock.Now()
	if err := in.validate(now); err != nil {
		return model.TableReservation{}, s.fail(span, "create reservation", err)
	}

	res := model.TableReservation{
		ShopID:        strings.TrimSpace(in.ShopID),
		TableID:       strings.TrimSpace(in.TableID),
		TableNumber:   in.TableNumber,
		UserID:        in.UserID,
		Start:         in.Start.UTC(),
		DurationHours: in.DurationHours,
		PartySize:     in.PartySize,
		Status:        model.StatusPending,
		Contact:       trimContact(in.Contact),
		Notes:         strings.TrimSpace(in.Notes),
		Audit: model.Audit{
			CreatedAt: now,
			CreatedBy: model.ActorOrAnonymous(in.UserID),
			UpdatedAt: now,
		},
	}

	// Anonymous callers share one creator id, so their keys are ignored.
	key := strings.TrimSpace(in.IdempotencyKey)
	if in.UserID == "" {
		key = ""
	}

	replayed := false
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockTable(txCtx, res.TableID); err != nil {
			return err
		}
		if key != "" {
			existing, err := s.repo.FindReservationByIdempotencyKey(txCtx, res.CreatedBy, key)
			if err != nil {
				return err
			}
			if existing != nil {
				if !sameRequest(*existing, res) {
					return &model.ValidationError{Field: "idempotency_key", Reason: "was already used for a different reservation"}
				}
				res, replayed = *existing, true
				return nil
			}
		}

		overlapping, err := s.repo.FindOverlapping(txCtx, res.TableID, res.Interval(), model.ActiveStatuses)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			ids := make([]string, 0, len(overlapping))
			for _, o := range overlapping {
				ids = append(ids, o.ID)
			}
			return &model.ConflictError{TableID: res.TableID, Requested: res.Interval(), Conflicting: ids}
		}

		id, err := s.repo.CreateReservation(txCtx, res, key)
		if err != nil {
			return err
		}
		res.ID = id
		return nil
	})
	if err != nil {
		return model.TableReservation{}, s.fail(span, "create reservation", err)
	}

	span.SetAttributes(attribute.String("booking.id", res.ID), attribute.Bool("idempotent.replay", replayed))
	if !replayed {
		s.notify(ctx, model.ReservationChange(res, ""))
	}
	return res, nil
}

type CreateEventBookingInput struct {
	EventID         string
	ShopID          string
	ShopName        string
	EventName       string
	EventDate       time.Time
	EventTimeString string
	Participants    int
	UserID          string
	Contact         model.Contact
	Notes           string
}

func (in CreateEventBookingInput) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(in.EventID) == "":
		return &model.ValidationError{Field: "event_id", Reason: "is required"}
	case strings.TrimSpace(in.ShopID) == "":
		return &model.ValidationError{Field: "shop_id", Reason: "is required"}
	case strings.TrimSpace(in.EventName) == "":
		return &model.ValidationError{Field: "event_name", Reason: "is required"}
	case in.EventDate.IsZero():
		return &model.ValidationError{Field: "event_date", Reason: "is required"}
	case in.EventDate.Before(now):
		return &model.ValidationError{Field: "event_date", Reason: "must not be in the past"}
	case in.Participants < 1:
		return &model.ValidationError{Field: "participants", Reason: "must be at least 1"}
	case strings.TrimSpace(in.Contact.Name) == "":
		return &model.ValidationError{Field: "contact.name", Reason: "is required"}
	case strings.TrimSpace(in.Contact.Phone) == "":
		return &model.ValidationError{Field: "contact.phone", Reason: "is required"}
	}
	return nil
}

// CreateEventBooking records a confirmed event booking. Events have no
// capacity cap.
func (s *Service) CreateEventBooking(ctx context.Context, in CreateEventBookingInput) (model.EventBooking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateEventBooking", trace.WithAttributes(
		attribute.String("shop.id", in.ShopID),
		attribute.String("event.id", in.EventID),
	))
	defer span.End()

	now := s.clock.Now()
	if err := in.validate(now); err != nil {
		return model.EventBooking{}, s.fail(span, "create event booking", err)
	}

	actor := model.ActorOrAnonymous(in.UserID)
	confirmedAt := now
	b := model.EventBooking{
		EventID:         strings.TrimSpace(in.EventID),
		ShopID:          strings.TrimSpace(in.ShopID),
		ShopName:        strings.TrimSpace(in.ShopName),
		EventName:       strings.TrimSpace(in.EventName),
		EventDate:       in.EventDate.UTC(),
		EventTimeString: strings.TrimSpace(in.EventTimeString),
		Participants:    in.Participants,
		UserID:          in.UserID,
		Status:          model.StatusConfirmed,
		Contact:         trimContact(in.Contact),
		Notes:           strings.TrimSpace(in.Notes),
		Audit: model.Audit{
			CreatedAt:   now,
			CreatedBy:   actor,
			UpdatedAt:   now,
			ConfirmedAt: &confirmedAt,
			ConfirmedBy: actor,
		},
	}

	id, err := s.repo.CreateEventBooking(ctx, b)
	if err != nil {
		return model.EventBooking{}, s.fail(span, "create event booking", err)
	}
	b.ID = id
	span.SetAttributes(attribute.String("booking.id", id))

	s.notify(ctx, model.EventBookingChange(b, ""))
	return b, nil
}

// Cancel moves a non-terminal booking to cancelled.
func (s *Service) Cancel(ctx context.Context, kind model.Kind, id, actorID, reason string) (model.StatusChange, error) {
	return s.transition(ctx, kind, id, model.StatusCancelled, actorID, strings.TrimSpace(reason))
}

// Confirm accepts a pending table reservation.
func (s *Service) Confirm(ctx context.Context, id, actorID string) (model.StatusChange, error) {
	return s.transition(ctx, model.KindTable, id, model.StatusConfirmed, actorID, "")
}

// Complete closes a confirmed booking.
func (s *Service) Complete(ctx context.Context, kind model.Kind, id, actorID string) (model.StatusChange, error) {
	return s.transition(ctx, kind, id, model.StatusCompleted, actorID, "")
}

func (s *Service) transition(ctx context.Context, kind model.Kind, id string, to model.Status, actorID, reason string) (model.StatusChange, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("booking.kind", string(kind)),
		attribute.String("booking.id", id),
		attribute.String("booking.to", string(to)),
	))
	defer span.End()

	op := string(to) + " " + string(kind) + " booking"
	if kind != model.KindTable && kind != model.KindEvent {
		return model.StatusChange{}, s.fail(span, op, &model.ValidationError{Field: "kind", Reason: "must be table or event"})
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return model.StatusChange{}, s.fail(span, op, &model.ValidationError{Field: "id", Reason: "is required"})
	}

	patch := model.StatusPatch{
		To:     to,
		At:     s.clock.Now(),
		By:     model.ActorOrAnonymous(actorID),
		Reason: reason,
	}

	var change model.StatusChange
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		switch kind {
		case model.KindTable:
			current, err := s.repo.GetReservation(txCtx, id)
			if err != nil {
				return notFound(kind, id, err)
			}
			if !ValidTransition(kind, current.Status, to) {
				return &model.InvalidStateError{Kind: kind, ID: id, From: current.Status, To: to}
			}
			patch.From = current.Status
			updated, err := s.repo.UpdateReservation(txCtx, id, patch)
			if err != nil {
				return err
			}
			change = model.ReservationChange(updated, current.Status)
		case model.KindEvent:
			current, err := s.repo.GetEventBooking(txCtx, id)
			if err != nil {
				return notFound(kind, id, err)
			}
			if !ValidTransition(kind, current.Status, to) {
				return &model.InvalidStateError{Kind: kind, ID: id, From: current.Status, To: to}
			}
			patch.From = current.Status
			updated, err := s.repo.UpdateEventBooking(txCtx, id, patch)
			if err != nil {
				return err
			}
			change = model.EventBookingChange(updated, current.Status)
		}
		return nil
	})
	if err != nil {
		return model.StatusChange{}, s.fail(span, op, err)
	}

	s.notify(ctx, change)
	return change, nil
}

func (s *Service) GetReservation(ctx context.Context, id string) (model.TableReservation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.TableReservation{}, &model.ValidationError{Field: "id", Reason: "is required"}
	}
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return model.TableReservation{}, wrapDependency("get reservation", notFound(model.KindTable, id, err))
	}
	return r, nil
}

func (s *Service) GetEventBooking(ctx context.Context, id string) (model.EventBooking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.EventBooking{}, &model.ValidationError{Field: "id", Reason: "is required"}
	}
	b, err := s.repo.GetEventBooking(ctx, id)
	if err != nil {
		return model.EventBooking{}, wrapDependency("get event booking", notFound(model.KindEvent, id, err))
	}
	return b, nil
}

// ListActiveBookingsForTable returns the pending and confirmed reservations of
// a table that overlap window, ordered by start.
func (s *Service) ListActiveBookingsForTable(ctx context.Context, tableID string, window model.Interval) ([]model.TableReservation, error) {
	if strings.TrimSpace(tableID) == "" {
		return nil, &model.ValidationError{Field: "table_id", Reason: "is required"}
	}
	if !window.Valid() {
		return nil, &model.ValidationError{Field: "window", Reason: "end must be after start"}
	}

	found, err := s.repo.FindOverlapping(ctx, strings.TrimSpace(tableID), window, model.ActiveStatuses)
	if err != nil {
		return nil, wrapDependency("list active bookings", err)
	}
	active := found[:0]
	for _, r := range found {
		if r.Status.Active() && r.Interval().Overlaps(window) {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Start.Before(active[j].Start) })
	return active, nil
}

// Bounds for slot searches.
const (
	MaxSlotDurationHours = 24
	MinSlotStep          = 5 * time.Minute
	MaxSlotStep          = 24 * time.Hour
	MaxSlotWindow        = 7 * 24 * time.Hour
)

// FreeSlots lists start times within window at which a reservation of
// durationHours fits on the table. Candidates are spaced by step; a zero step
// means 30 minutes.
func (s *Service) FreeSlots(ctx context.Context, tableID string, window model.Interval, durationHours int, step time.Duration) ([]time.Time, error) {
	if durationHours < 1 || durationHours > MaxSlotDurationHours {
		return nil, &model.ValidationError{Field: "duration_hours", Reason: "must be between 1 and 24"}
	}
	if step == 0 {
		step = 30 * time.Minute
	}
	if step < MinSlotStep || step > MaxSlotStep {
		return nil, &model.ValidationError{Field: "step", Reason: "must be between 5 minutes and 24 hours"}
	}
	if window.Duration() > MaxSlotWindow {
		return nil, &model.ValidationError{Field: "window", Reason: "must not exceed 7 days"}
	}
	active, err := s.ListActiveBookingsForTable(ctx, tableID, window)
	if err != nil {
		return nil, err
	}
	busy := make([]model.Interval, 0, len(active))
	for _, r := range active {
		busy = append(busy, r.Interval())
	}
	return availability.AvailableSlots(window, time.Duration(durationHours)*time.Hour, step, busy, s.clock.Now()), nil
}

func (s *Service) ListReservationsForUser(ctx context.Context, userID string, when model.When) ([]model.TableReservation, error) {
	if userID == "" {
		return nil, &model.ValidationError{Field: "user_id", Reason: "is required"}
	}
	out, err := s.repo.ListReservationsByUser(ctx, userID, model.UserQuery{When: when, Now: s.clock.Now()})
	if err != nil {
		return nil, wrapDependency("list reservations", err)
	}
	return out, nil
}

func (s *Service) ListEventBookingsForUser(ctx context.Context, userID string, when model.When) ([]model.EventBooking, error) {
	if userID == "" {
		return nil, &model.ValidationError{Field: "user_id", Reason: "is required"}
	}
	out, err := s.repo.ListEventBookingsByUser(ctx, userID, model.UserQuery{When: when, Now: s.clock.Now()})
	if err != nil {
		return nil, wrapDependency("list event bookings", err)
	}
	return out, nil
}

// notify never fails the caller; the transition is already committed.
func (s *Service) notify(ctx context.Context, change model.StatusChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStatusChange(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "status notification failed",
			"kind", change.Kind,
			"booking_id", change.BookingID,
			"from", change.Previous,
			"to", change.Current,
			"err", err,
		)
	}
}

func (s *Service) fail(span trace.Span, op string, err error) error {
	err = wrapDependency(op, err)
	if errors.Is(err, model.ErrDependency) {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
	}
	return err
}

func notFound(kind model.Kind, id string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return &model.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

func wrapDependency(op string, err error) error {
	if err == nil || model.IsDomain(err) || errors.Is(err, model.ErrDependency) {
		return err
	}
	return &model.DependencyError{Op: op, Err: err}
}

// sameRequest reports whether a stored reservation matches a retried request.
func sameRequest(stored, req model.TableReservation) bool {
	return stored.ShopID == req.ShopID &&
		stored.TableID == req.TableID &&
		stored.Start.Equal(req.Start) &&
		stored.DurationHours == req.DurationHours &&
		stored.PartySize == req.PartySize
}

func trimContact(c model.Contact) model.Contact {
	return model.Contact{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
		Email: strings.TrimSpace(c.Email),
	}
}
