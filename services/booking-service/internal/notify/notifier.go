// Package notify publishes booking status changes for the notification
// service.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tabletopreserve/tabletop/libs/kafkax"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

const (
	TopicStatusChanged     = "booking.status.changed.v1"
	EventTypeStatusChanged = "booking.status_changed"
)

type ContactPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// StatusChangedEvent is the message body on TopicStatusChanged.
type StatusChangedEvent struct {
	Kind           string         `json:"kind"`
	BookingID      string         `json:"booking_id"`
	ShopID         string         `json:"shop_id"`
	UserID         string         `json:"user_id,omitempty"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	Status         string         `json:"status"`
	Actor          string         `json:"actor"`
	Reason         string         `json:"reason,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Contact        ContactPayload `json:"contact"`

	TableNumber   int        `json:"table_number,omitempty"`
	Start         *time.Time `json:"start,omitempty"`
	DurationHours int        `json:"duration_hours,omitempty"`
	PartySize     int        `json:"party_size,omitempty"`

	ShopName     string     `json:"shop_name,omitempty"`
	EventName    string     `json:"event_name,omitempty"`
	EventDate    *time.Time `json:"event_date,omitempty"`
	EventTime    string     `json:"event_time,omitempty"`
	Participants int        `json:"participants,omitempty"`
}

func NewStatusChangedEvent(c model.StatusChange) StatusChangedEvent {
	ev := StatusChangedEvent{
		Kind:           string(c.Kind),
		BookingID:      c.BookingID,
		ShopID:         c.ShopID,
		UserID:         c.UserID,
		PreviousStatus: string(c.Previous),
		Status:         string(c.Current),
		Actor:          c.Actor,
		Reason:         c.Reason,
		OccurredAt:     c.At.UTC(),
	}
	if r := c.Reservation; r != nil {
		start := r.Start.UTC()
		ev.Contact = ContactPayload(r.Contact)
		ev.TableNumber = r.TableNumber
		ev.Start = &start
		ev.DurationHours = r.DurationHours
		ev.PartySize = r.PartySize
	}
	if b := c.EventBooking; b != nil {
		date := b.EventDate.UTC()
		ev.Contact = ContactPayload(b.Contact)
		ev.ShopName = b.ShopName
		ev.EventName = b.EventName
		ev.EventDate = &date
		ev.EventTime = b.EventTimeString
		ev.Participants = b.Participants
	}
	return ev
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier writes one message per status change, keyed by booking id so
// changes of one booking stay ordered within a partition.
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

func NewKafkaNotifier(writer messageWriter, topic string, timeout time.Duration) *KafkaNotifier {
	if topic == "" {
		topic = TopicStatusChanged
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &KafkaNotifier{writer: writer, topic: topic, timeout: timeout}
}

// NewWriter returns a writer for messages that carry their own topic.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func (n *KafkaNotifier) NotifyStatusChange(ctx context.Context, change model.StatusChange) error {
	payload, err := json.Marshal(NewStatusChangedEvent(change))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	msg := kafkax.NewMessage(ctx, n.topic, change.BookingID, EventTypeStatusChanged, payload)
	return n.writer.WriteMessages(ctx, msg)
}

// LogNotifier is used when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) NotifyStatusChange(ctx context.Context, change model.StatusChange) error {
	n.Logger.InfoContext(ctx, "booking status changed",
		"kind", change.Kind,
		"booking_id", change.BookingID,
		"from", change.Previous,
		"to", change.Current,
		"actor", change.Actor,
	)
	return nil
}
