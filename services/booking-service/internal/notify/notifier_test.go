package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tabletopreserve/tabletop/libs/kafkax"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

type recordingWriter struct {
	msgs        []kafka.Message
	hadDeadline bool
	err         error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.hadDeadline = ctx.Deadline()
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestKafkaNotifier_PublishesStatusChange(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	res := model.TableReservation{
		ID:            "res-1",
		ShopID:        "shop-1",
		TableNumber:   3,
		Start:         time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
		DurationHours: 2,
		PartySize:     4,
		Status:        model.StatusCancelled,
		Contact:       model.Contact{Name: "Ada", Phone: "+1555"},
		Audit:         model.Audit{UpdatedAt: at, CancelledAt: &at, CancelledBy: "user-1", CancellationReason: "sick"},
	}

	w := &recordingWriter{}
	n := NewKafkaNotifier(w, "", time.Second)
	if err := n.NotifyStatusChange(context.Background(), model.ReservationChange(res, model.StatusConfirmed)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if !w.hadDeadline {
		t.Fatalf("expected write to be bounded by a timeout")
	}

	msg := w.msgs[0]
	if msg.Topic != TopicStatusChanged || string(msg.Key) != "res-1" {
		t.Fatalf("unexpected topic/key %s/%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventType != EventTypeStatusChanged || meta.EventID == "" || meta.EventID == "res-1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	var ev StatusChangedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != "table" || ev.PreviousStatus != "confirmed" || ev.Status != "cancelled" {
		t.Fatalf("unexpected transition %+v", ev)
	}
	if ev.Actor != "user-1" || ev.Reason != "sick" || ev.Contact.Name != "Ada" || ev.TableNumber != 3 {
		t.Fatalf("unexpected payload %+v", ev)
	}
	if ev.Start == nil || !ev.Start.Equal(res.Start) || ev.EventDate != nil {
		t.Fatalf("unexpected times %+v", ev)
	}
}

func TestKafkaNotifier_EventBooking(t *testing.T) {
	b := model.EventBooking{
		ID:              "evb-1",
		ShopName:        "Dice Den",
		EventName:       "Friday Draft",
		EventDate:       time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		EventTimeString: "7:00 PM",
		Participants:    2,
		Status:          model.StatusConfirmed,
		Audit:           model.Audit{CreatedBy: "customer"},
	}
	ev := NewStatusChangedEvent(model.EventBookingChange(b, ""))
	if ev.Kind != "event" || ev.PreviousStatus != "" || ev.Actor != "customer" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.EventName != "Friday Draft" || ev.EventTime != "7:00 PM" || ev.Start != nil {
		t.Fatalf("unexpected event details %+v", ev)
	}
}

func TestKafkaNotifier_ReturnsWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	n := NewKafkaNotifier(w, "custom.topic", 0)
	err := n.NotifyStatusChange(context.Background(), model.ReservationChange(model.TableReservation{ID: "r"}, ""))
	if err == nil {
		t.Fatal("expected error")
	}
	if w.msgs[0].Topic != "custom.topic" {
		t.Fatalf("expected custom topic, got %s", w.msgs[0].Topic)
	}
}
