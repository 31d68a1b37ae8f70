package model

import "time"

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Audit holds the lifecycle stamps. A pair (At, By) is set iff the booking
// reached the matching status.
type Audit struct {
	CreatedAt          time.Time  `json:"created_at"`
	CreatedBy          string     `json:"created_by"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy        string     `json:"confirmed_by,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CompletedBy        string     `json:"completed_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

// AnonymousActor is recorded when a booking is created or changed without a
// signed-in user.
const AnonymousActor = "customer"

func ActorOrAnonymous(userID string) string {
	if userID == "" {
		return AnonymousActor
	}
	return userID
}

type TableReservation struct {
	ID            string    `json:"id"`
	ShopID        string    `json:"shop_id"`
	TableID       string    `json:"table_id"`
	TableNumber   int       `json:"table_number"`
	UserID        string    `json:"user_id,omitempty"`
	Start         time.Time `json:"start"`
	DurationHours int       `json:"duration_hours"`
	PartySize     int       `json:"party_size"`
	Status        Status    `json:"status"`
	Contact       Contact   `json:"contact"`
	Notes         string    `json:"notes,omitempty"`
	ShopNotes     string    `json:"shop_notes,omitempty"`
	Audit
}

func (r TableReservation) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationHours) * time.Hour)
}

func (r TableReservation) Interval() Interval {
	return Interval{Start: r.Start, End: r.End()}
}

type EventBooking struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	ShopID          string    `json:"shop_id"`
	ShopName        string    `json:"shop_name,omitempty"`
	EventName       string    `json:"event_name"`
	EventDate       time.Time `json:"event_date"`
	EventTimeString string    `json:"event_time,omitempty"`
	Participants    int       `json:"participants"`
	UserID          string    `json:"user_id,omitempty"`
	Status          Status    `json:"status"`
	Contact         Contact   `json:"contact"`
	Notes           string    `json:"notes,omitempty"`
	Audit
}

// StatusPatch is a conditional status update: it applies only while the
// stored status still equals From.
type StatusPatch struct {
	From   Status
	To     Status
	At     time.Time
	By     string
	Reason string
}

// Apply stamps the audit pair belonging to p.To.
func (p StatusPatch) Apply(a *Audit) {
	at := p.At
	a.UpdatedAt = at
	switch p.To {
	case StatusConfirmed:
		a.ConfirmedAt, a.ConfirmedBy = &at, p.By
	case StatusCompleted:
		a.CompletedAt, a.CompletedBy = &at, p.By
	case StatusCancelled:
		a.CancelledAt, a.CancelledBy = &at, p.By
		a.CancellationReason = p.Reason
	}
}

// UserQuery selects one user's bookings on one side of Now. Past results are
// newest first, upcoming results oldest first. A zero Range is unbounded.
type UserQuery struct {
	When  When
	Now   time.Time
	Range Interval
	Limit int
}
