package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tabletopreserve/tabletop/libs/db"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelInApp = "in_app"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one delivery on one channel. In-app notifications make up a
// user's notification inbox.
type Notification struct {
	ID           int64
	EventID      string
	UserID       string
	BookingKind  string
	BookingID    string
	ShopID       string
	StatusChange string
	Channel      string
	Recipient    string
	Subject      string
	Body         string
	Status       string
	ProviderID   string
	ErrorReason  string
	CreatedAt    time.Time
	OpenedAt     *time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim stores n before it is delivered. It reports false when the event was
// already claimed on that channel, in which case nothing must be sent. An
// empty n.Status is stored as pending.
func (r *Repository) Claim(ctx context.Context, n Notification) (int64, bool, error) {
	status := n.Status
	if status == "" {
		status = StatusPending
	}
	var id int64
	err := r.pool.Q(ctx).QueryRow(ctx, `
		INSERT INTO notifications
			(event_id, user_id, booking_kind, booking_id, shop_id, status_change, channel, recipient,
			 subject, body, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		ON CONFLICT (event_id, channel) DO NOTHING
		RETURNING id
	`, n.EventID, n.UserID, n.BookingKind, n.BookingID, n.ShopID, n.StatusChange, n.Channel, n.Recipient,
		n.Subject, n.Body, status).Scan(&id)
	if db.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Finish records the outcome of a claimed delivery.
func (r *Repository) Finish(ctx context.Context, id int64, status, providerID, errorReason string) error {
	tag, err := r.pool.Q(ctx).Exec(ctx, `
		UPDATE notifications
		SET status = $2, provider_id = NULLIF($3, ''), error_reason = NULLIF($4, ''), updated_at = now()
		WHERE id = $1
	`, id, status, providerID, errorReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns the newest in-app notifications of userID.
func (r *Repository) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := r.pool.Q(ctx).Query(ctx, `
		SELECT id, event_id, COALESCE(user_id, ''), booking_kind, booking_id, shop_id, status_change,
			channel, recipient, COALESCE(subject, ''), body, status, created_at, opened_at
		FROM notifications
		WHERE user_id = $1 AND channel = 'in_app'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.EventID, &n.UserID, &n.BookingKind, &n.BookingID, &n.ShopID, &n.StatusChange,
			&n.Channel, &n.Recipient, &n.Subject, &n.Body, &n.Status, &n.CreatedAt, &n.OpenedAt)
		return n, err
	})
}

// MarkOpened stamps the first time userID opened notification id and returns
// that time. Notifications of other users are reported as ErrNotFound.
func (r *Repository) MarkOpened(ctx context.Context, id int64, userID string, at time.Time) (time.Time, error) {
	var opened time.Time
	err := r.pool.Q(ctx).QueryRow(ctx, `
		UPDATE notifications
		SET opened_at = COALESCE(opened_at, $3)
		WHERE id = $1 AND user_id = $2 AND channel = 'in_app'
		RETURNING opened_at
	`, id, userID, at).Scan(&opened)
	if db.IsNoRows(err) {
		return time.Time{}, ErrNotFound
	}
	return opened, err
}
