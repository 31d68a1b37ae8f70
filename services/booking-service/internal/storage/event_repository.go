package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabletopreserve/tabletop/libs/db"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

const eventBookingColumns = `
	id, event_id, shop_id, COALESCE(shop_name, ''), event_name, event_date, COALESCE(event_time, ''),
	participants, COALESCE(user_id, ''), status,
	contact_name, contact_phone, COALESCE(contact_email, ''), COALESCE(notes, ''),
	created_at, created_by, updated_at,
	confirmed_at, COALESCE(confirmed_by, ''), completed_at, COALESCE(completed_by, ''),
	cancelled_at, COALESCE(cancelled_by, ''), COALESCE(cancellation_reason, '')`

func scanEventBooking(row pgx.Row) (model.EventBooking, error) {
	var b model.EventBooking
	err := row.Scan(
		&b.ID,
		&b.EventID,
		&b.ShopID,
		&b.ShopName,
		&b.EventName,
		&b.EventDate,
		&b.EventTimeString,
		&b.Participants,
		&b.UserID,
		&b.Status,
		&b.Contact.Name,
		&b.Contact.Phone,
		&b.Contact.Email,
		&b.Notes,
		&b.CreatedAt,
		&b.CreatedBy,
		&b.UpdatedAt,
		&b.ConfirmedAt,
		&b.ConfirmedBy,
		&b.CompletedAt,
		&b.CompletedBy,
		&b.CancelledAt,
		&b.CancelledBy,
		&b.CancellationReason,
	)
	return b, err
}

func (r *BookingRepository) CreateEventBooking(ctx context.Context, b model.EventBooking) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Q(ctx).Exec(ctx, `
		INSERT INTO event_bookings
			(id, event_id, shop_id, shop_name, event_name, event_date, event_time, participants, user_id, status,
			 contact_name, contact_phone, contact_email, notes,
			 created_at, created_by, updated_at, confirmed_at, confirmed_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10,
			$11, $12, NULLIF($13, ''), NULLIF($14, ''),
			$15, $16, $17, $18, NULLIF($19, ''))
	`, id, b.EventID, b.ShopID, b.ShopName, b.EventName, b.EventDate, b.EventTimeString, b.Participants, b.UserID, string(b.Status),
		b.Contact.Name, b.Contact.Phone, b.Contact.Email, b.Notes,
		b.CreatedAt, b.CreatedBy, b.UpdatedAt, b.ConfirmedAt, b.ConfirmedBy)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetEventBooking locks the row when ctx carries a transaction.
func (r *BookingRepository) GetEventBooking(ctx context.Context, id string) (model.EventBooking, error) {
	b, err := scanEventBooking(r.pool.Q(ctx).QueryRow(ctx, `
		SELECT `+eventBookingColumns+`
		FROM event_bookings
		WHERE id = $1
	`+forUpdate(ctx), id))
	if db.IsNoRows(err) {
		return model.EventBooking{}, model.ErrNotFound
	}
	return b, err
}

func (r *BookingRepository) UpdateEventBooking(ctx context.Context, id string, patch model.StatusPatch) (model.EventBooking, error) {
	b, err := scanEventBooking(r.pool.Q(ctx).QueryRow(ctx, `
		UPDATE event_bookings
		SET `+statusAssignments+`
		WHERE id = $1 AND status = $2
		RETURNING `+eventBookingColumns,
		id, string(patch.From), string(patch.To), patch.At, patch.By, patch.Reason))
	if db.IsNoRows(err) {
		current, getErr := r.GetEventBooking(ctx, id)
		if getErr != nil {
			return model.EventBooking{}, getErr
		}
		return model.EventBooking{}, &model.InvalidStateError{Kind: model.KindEvent, ID: id, From: current.Status, To: patch.To}
	}
	return b, err
}

func (r *BookingRepository) ListEventBookingsByUser(ctx context.Context, userID string, q model.UserQuery) ([]model.EventBooking, error) {
	where, args := userFilter("event_date", userID, q)
	rows, err := r.pool.Q(ctx).Query(ctx, `
		SELECT `+eventBookingColumns+`
		FROM event_bookings
		WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventBooking
	for rows.Next() {
		b, err := scanEventBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
