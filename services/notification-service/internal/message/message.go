// Package message decodes booking status events and renders the text sent to
// customers.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidEvent = errors.New("invalid booking status event")

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Event mirrors the payload of booking.status.changed.v1.
type Event struct {
	Kind           string     `json:"kind"`
	BookingID      string     `json:"booking_id"`
	ShopID         string     `json:"shop_id"`
	UserID         string     `json:"user_id"`
	PreviousStatus string     `json:"previous_status"`
	Status         string     `json:"status"`
	Actor          string     `json:"actor"`
	Reason         string     `json:"reason"`
	OccurredAt     time.Time  `json:"occurred_at"`
	Contact        Contact    `json:"contact"`
	TableNumber    int        `json:"table_number"`
	Start          *time.Time `json:"start"`
	DurationHours  int        `json:"duration_hours"`
	PartySize      int        `json:"party_size"`
	ShopName       string     `json:"shop_name"`
	EventName      string     `json:"event_name"`
	EventDate      *time.Time `json:"event_date"`
	EventTime      string     `json:"event_time"`
	Participants   int        `json:"participants"`
}

// Transition is the "from->to" label stored with each notification.
func (e Event) Transition() string {
	from := e.PreviousStatus
	if from == "" {
		from = "new"
	}
	return from + "->" + e.Status
}

func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.BookingID == "" || ev.Status == "" || (ev.Kind != "table" && ev.Kind != "event") {
		return Event{}, fmt.Errorf("%w: missing kind, booking_id or status", ErrInvalidEvent)
	}
	return ev, nil
}

type Message struct {
	Subject string
	Body    string
}

// Render builds the customer-facing text for ev. Times are shown in UTC.
func Render(ev Event) Message {
	what := describe(ev)
	greeting := "Hi"
	if name := strings.TrimSpace(ev.Contact.Name); name != "" {
		greeting = "Hi " + name
	}

	var subject, line string
	switch ev.Status {
	case "pending":
		subject = "Reservation request received"
		line = fmt.Sprintf("we received your request for %s. The shop will confirm it shortly.", what)
	case "confirmed":
		if ev.Kind == "event" {
			subject = "You're booked"
			line = fmt.Sprintf("you're booked for %s.", what)
		} else {
			subject = "Reservation confirmed"
			line = fmt.Sprintf("your reservation for %s is confirmed.", what)
		}
	case "completed":
		subject = "Thanks for visiting"
		line = fmt.Sprintf("thanks for joining us for %s.", what)
	case "cancelled":
		subject = "Booking cancelled"
		line = fmt.Sprintf("your booking for %s was cancelled.", what)
		if reason := strings.TrimSpace(ev.Reason); reason != "" {
			line += " Reason: " + reason + "."
		}
	default:
		subject = "Booking update"
		line = fmt.Sprintf("your booking for %s is now %s.", what, ev.Status)
	}

	body := greeting + ", " + line
	if ev.ShopName != "" {
		subject = "[" + ev.ShopName + "] " + subject
	}
	return Message{Subject: subject, Body: body}
}

func describe(ev Event) string {
	if ev.Kind == "event" {
		name := ev.EventName
		if name == "" {
			name = "the event"
		}
		if ev.EventDate != nil {
			name += " on " + ev.EventDate.UTC().Format("Mon Jan 2")
		}
		if ev.EventTime != "" {
			name += " at " + ev.EventTime
		}
		if ev.Participants > 0 {
			name += fmt.Sprintf(" (%d %s)", ev.Participants, plural(ev.Participants, "participant"))
		}
		return name
	}

	desc := fmt.Sprintf("table %d", ev.TableNumber)
	if ev.Start != nil {
		desc += " on " + ev.Start.UTC().Format("Mon Jan 2 15:04 MST")
	}
	if ev.DurationHours > 0 {
		desc += fmt.Sprintf(" for %d %s", ev.DurationHours, plural(ev.DurationHours, "hour"))
	}
	if ev.PartySize > 0 {
		desc += fmt.Sprintf(", party of %d", ev.PartySize)
	}
	return desc
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
