package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tabletopreserve/tabletop/libs/db"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

var errNoTx = errors.New("table lock requires a transaction")

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.pool.WithTx(ctx, fn)
}

// LockTable takes a transaction-scoped advisory lock on the table id. Writers
// of the same table queue behind it until commit or rollback.
func (r *BookingRepository) LockTable(ctx context.Context, tableID string) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return errNoTx
	}
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "table:"+tableID)
	return err
}

const reservationColumns = `
	id, shop_id, table_id, table_number, COALESCE(user_id, ''), start_time, duration_hours, party_size, status,
	contact_name, contact_phone, COALESCE(contact_email, ''), COALESCE(notes, ''), COALESCE(shop_notes, ''),
	created_at, created_by, updated_at,
	confirmed_at, COALESCE(confirmed_by, ''), completed_at, COALESCE(completed_by, ''),
	cancelled_at, COALESCE(cancelled_by, ''), COALESCE(cancellation_reason, '')`

func scanReservation(row pgx.Row) (model.TableReservation, error) {
	var res model.TableReservation
	err := row.Scan(
		&res.ID,
		&res.ShopID,
		&res.TableID,
		&res.TableNumber,
		&res.UserID,
		&res.Start,
		&res.DurationHours,
		&res.PartySize,
		&res.Status,
		&res.Contact.Name,
		&res.Contact.Phone,
		&res.Contact.Email,
		&res.Notes,
		&res.ShopNotes,
		&res.CreatedAt,
		&res.CreatedBy,
		&res.UpdatedAt,
		&res.ConfirmedAt,
		&res.ConfirmedBy,
		&res.CompletedAt,
		&res.CompletedBy,
		&res.CancelledAt,
		&res.CancelledBy,
		&res.CancellationReason,
	)
	return res, err
}

func collectReservations(rows pgx.Rows) ([]model.TableReservation, error) {
	defer rows.Close()
	var out []model.TableReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// FindOverlapping uses the half-open overlap test: start < window.End and
// end > window.Start.
func (r *BookingRepository) FindOverlapping(ctx context.Context, tableID string, window model.Interval, statuses []model.Status) ([]model.TableReservation, error) {
	rows, err := r.pool.Q(ctx).Query(ctx, `
		SELECT `+reservationColumns+`
		FROM table_reservations
		WHERE table_id = $1
			AND status = ANY($2)
			AND start_time < $4
			AND start_time + make_interval(hours => duration_hours) > $3
		ORDER BY start_time ASC
	`, tableID, statusStrings(statuses), window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *BookingRepository) FindReservationByIdempotencyKey(ctx context.Context, createdBy, key string) (*model.TableReservation, error) {
	res, err := scanReservation(r.pool.Q(ctx).QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM table_reservations
		WHERE created_by = $1 AND idempotency_key = $2
	`, createdBy, key))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *BookingRepository) CreateReservation(ctx context.Context, res model.TableReservation, idempotencyKey string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Q(ctx).Exec(ctx, `
		INSERT INTO table_reservations
			(id, shop_id, table_id, table_number, user_id, start_time, duration_hours, party_size, status,
			 contact_name, contact_phone, contact_email, notes, shop_notes, idempotency_key,
			 created_at, created_by, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9,
			$10, $11, NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''),
			$16, $17, $18)
	`, id, res.ShopID, res.TableID, res.TableNumber, res.UserID, res.Start, res.DurationHours, res.PartySize, string(res.Status),
		res.Contact.Name, res.Contact.Phone, res.Contact.Email, res.Notes, res.ShopNotes, idempotencyKey,
		res.CreatedAt, res.CreatedBy, res.UpdatedAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetReservation locks the row when ctx carries a transaction.
func (r *BookingRepository) GetReservation(ctx context.Context, id string) (model.TableReservation, error) {
	res, err := scanReservation(r.pool.Q(ctx).QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM table_reservations
		WHERE id = $1
	`+forUpdate(ctx), id))
	if db.IsNoRows(err) {
		return model.TableReservation{}, model.ErrNotFound
	}
	return res, err
}

func (r *BookingRepository) UpdateReservation(ctx context.Context, id string, patch model.StatusPatch) (model.TableReservation, error) {
	res, err := scanReservation(r.pool.Q(ctx).QueryRow(ctx, `
		UPDATE table_reservations
		SET `+statusAssignments+`
		WHERE id = $1 AND status = $2
		RETURNING `+reservationColumns,
		id, string(patch.From), string(patch.To), patch.At, patch.By, patch.Reason))
	if db.IsNoRows(err) {
		current, getErr := r.GetReservation(ctx, id)
		if getErr != nil {
			return model.TableReservation{}, getErr
		}
		return model.TableReservation{}, &model.InvalidStateError{Kind: model.KindTable, ID: id, From: current.Status, To: patch.To}
	}
	return res, err
}

func (r *BookingRepository) ListReservationsByUser(ctx context.Context, userID string, q model.UserQuery) ([]model.TableReservation, error) {
	where, args := userFilter("start_time", userID, q)
	rows, err := r.pool.Q(ctx).Query(ctx, `
		SELECT `+reservationColumns+`
		FROM table_reservations
		WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// statusAssignments stamps the audit pair of the target status ($3) with the
// time ($4), actor ($5) and, for cancellations, reason ($6).
const statusAssignments = `
	status = $3,
	updated_at = $4,
	confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4::timestamptz ELSE confirmed_at END,
	confirmed_by = CASE WHEN $3 = 'confirmed' THEN $5::text ELSE confirmed_by END,
	completed_at = CASE WHEN $3 = 'completed' THEN $4::timestamptz ELSE completed_at END,
	completed_by = CASE WHEN $3 = 'completed' THEN $5::text ELSE completed_by END,
	cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4::timestamptz ELSE cancelled_at END,
	cancelled_by = CASE WHEN $3 = 'cancelled' THEN $5::text ELSE cancelled_by END,
	cancellation_reason = CASE WHEN $3 = 'cancelled' THEN NULLIF($6::text, '') ELSE cancellation_reason END`

func forUpdate(ctx context.Context) string {
	if db.TxFromContext(ctx) != nil {
		return " FOR UPDATE"
	}
	return ""
}

// userFilter builds the WHERE/ORDER clause of per-user listings. Past means
// strictly before q.Now.
func userFilter(timeColumn, userID string, q model.UserQuery) (string, []any) {
	args := []any{userID, q.Now}
	var b strings.Builder
	b.WriteString("user_id = $1")
	if q.When == model.WhenPast {
		fmt.Fprintf(&b, " AND %s < $2", timeColumn)
	} else {
		fmt.Fprintf(&b, " AND %s >= $2", timeColumn)
	}
	if q.Range.Valid() {
		args = append(args, q.Range.Start, q.Range.End)
		fmt.Fprintf(&b, " AND %s >= $3 AND %s < $4", timeColumn, timeColumn)
	}
	if q.When == model.WhenPast {
		fmt.Fprintf(&b, " ORDER BY %s DESC", timeColumn)
	} else {
		fmt.Fprintf(&b, " ORDER BY %s ASC", timeColumn)
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	fmt.Fprintf(&b, " LIMIT %d", limit)
	return b.String(), args
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
