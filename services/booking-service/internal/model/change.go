package model

import "time"

// StatusChange describes one lifecycle step of a booking. Previous is empty
// when the booking was just created.
type StatusChange struct {
	Kind      Kind
	BookingID string
	ShopID    string
	UserID    string
	Previous  Status
	Current   Status
	Actor     string
	At        time.Time
	Reason    string

	Reservation  *TableReservation
	EventBooking *EventBooking
}

func ReservationChange(r TableReservation, previous Status) StatusChange {
	return StatusChange{
		Kind:        KindTable,
		BookingID:   r.ID,
		ShopID:      r.ShopID,
		UserID:      r.UserID,
		Previous:    previous,
		Current:     r.Status,
		Actor:       lastActor(r.Status, r.Audit),
		At:          r.UpdatedAt,
		Reason:      r.CancellationReason,
		Reservation: &r,
	}
}

func EventBookingChange(b EventBooking, previous Status) StatusChange {
	return StatusChange{
		Kind:         KindEvent,
		BookingID:    b.ID,
		ShopID:       b.ShopID,
		UserID:       b.UserID,
		Previous:     previous,
		Current:      b.Status,
		Actor:        lastActor(b.Status, b.Audit),
		At:           b.UpdatedAt,
		Reason:       b.CancellationReason,
		EventBooking: &b,
	}
}

func lastActor(s Status, a Audit) string {
	switch s {
	case StatusCancelled:
		return a.CancelledBy
	case StatusCompleted:
		return a.CompletedBy
	case StatusConfirmed:
		if a.ConfirmedBy != "" {
			return a.ConfirmedBy
		}
	}
	return a.CreatedBy
}
