package booking

import (
	"context"

	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

// Repository persists reservations and event bookings. Lookups of a missing
// id return an error matching model.ErrNotFound. Get* calls made inside
// WithTx lock the row until the transaction ends.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// LockTable serializes writers of one table until the surrounding
	// transaction ends.
	LockTable(ctx context.Context, tableID string) error
	FindOverlapping(ctx context.Context, tableID string, window model.Interval, statuses []model.Status) ([]model.TableReservation, error)
	FindReservationByIdempotencyKey(ctx context.Context, createdBy, key string) (*model.TableReservation, error)
	CreateReservation(ctx context.Context, r model.TableReservation, idempotencyKey string) (string, error)
	GetReservation(ctx context.Context, id string) (model.TableReservation, error)
	UpdateReservation(ctx context.Context, id string, patch model.StatusPatch) (model.TableReservation, error)
	ListReservationsByUser(ctx context.Context, userID string, q model.UserQuery) ([]model.TableReservation, error)

	CreateEventBooking(ctx context.Context, b model.EventBooking) (string, error)
	GetEventBooking(ctx context.Context, id string) (model.EventBooking, error)
	UpdateEventBooking(ctx context.Context, id string, patch model.StatusPatch) (model.EventBooking, error)
	ListEventBookingsByUser(ctx context.Context, userID string, q model.UserQuery) ([]model.EventBooking, error)
}

// Notifier hands status changes to the notification pipeline. Delivery is
// best effort.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, change model.StatusChange) error
}
