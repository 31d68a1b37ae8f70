// Package dispatch turns booking status events into email, SMS and in-app
// notifications and records every delivery.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/tabletopreserve/tabletop/libs/kafkax"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/email"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/message"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/sms"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/storage"
)

// Store claims a delivery before it is attempted and records the outcome.
type Store interface {
	Claim(ctx context.Context, n storage.Notification) (int64, bool, error)
	Finish(ctx context.Context, id int64, status, providerID, errorReason string) error
}

type Dispatcher struct {
	email  email.Sender
	sms    sms.Sender
	store  Store
	logger *slog.Logger
}

func New(emailSender email.Sender, smsSender sms.Sender, store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{email: emailSender, sms: smsSender, store: store, logger: logger}
}

// Handle delivers one event at most once per channel. Malformed events are
// logged and skipped. A failed claim is returned so the consumer retries; the
// channels claimed before it are not sent again.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	ev, err := message.Decode(msg.Value)
	if err != nil {
		d.logger.ErrorContext(ctx, "skipping booking event", "err", err, "event_id", meta.EventID)
		return nil
	}

	rendered := message.Render(ev)
	base := storage.Notification{
		EventID:      meta.EventID,
		UserID:       ev.UserID,
		BookingKind:  ev.Kind,
		BookingID:    ev.BookingID,
		ShopID:       ev.ShopID,
		StatusChange: ev.Transition(),
		Subject:      rendered.Subject,
		Body:         rendered.Body,
	}

	delivered := 0
	if ev.UserID != "" {
		n := base
		n.Channel, n.Recipient, n.Status = storage.ChannelInApp, ev.UserID, storage.StatusSent
		if _, _, err := d.store.Claim(ctx, n); err != nil {
			return fmt.Errorf("store in-app notification: %w", err)
		}
		delivered++
	}
	if to := strings.TrimSpace(ev.Contact.Email); to != "" && d.email != nil {
		n := base
		n.Channel, n.Recipient = storage.ChannelEmail, to
		err := d.deliver(ctx, n, d.email.ProviderID(), func(ctx context.Context) error {
			return d.email.Send(ctx, to, rendered.Subject, rendered.Body)
		})
		if err != nil {
			return err
		}
		delivered++
	}
	if to := strings.TrimSpace(ev.Contact.Phone); to != "" && d.sms != nil {
		n := base
		n.Channel, n.Recipient, n.Subject = storage.ChannelSMS, to, ""
		err := d.deliver(ctx, n, d.sms.ProviderID(), func(ctx context.Context) error {
			return d.sms.Send(ctx, to, rendered.Body)
		})
		if err != nil {
			return err
		}
		delivered++
	}

	if delivered == 0 {
		d.logger.WarnContext(ctx, "booking event has no reachable contact", "booking_id", ev.BookingID, "event_id", meta.EventID)
		return nil
	}
	d.logger.InfoContext(ctx, "booking notification processed",
		"booking_id", ev.BookingID,
		"transition", ev.Transition(),
		"channels", delivered,
	)
	return nil
}

// deliver claims n, sends it and records the result. Once the claim is stored
// the send is never repeated, so a failure to record the result is only
// logged and the row stays pending.
func (d *Dispatcher) deliver(ctx context.Context, n storage.Notification, providerID string, send func(context.Context) error) error {
	id, claimed, err := d.store.Claim(ctx, n)
	if err != nil {
		return fmt.Errorf("claim %s notification: %w", n.Channel, err)
	}
	if !claimed {
		d.logger.InfoContext(ctx, "notification already delivered", "channel", n.Channel, "event_id", n.EventID)
		return nil
	}

	status, reason := storage.StatusSent, ""
	if sendErr := send(ctx); sendErr != nil {
		status, reason = storage.StatusFailed, sendErr.Error()
		d.logger.WarnContext(ctx, "notification send failed", "channel", n.Channel, "booking_id", n.BookingID, "err", sendErr)
	}
	if err := d.store.Finish(ctx, id, status, providerID, reason); err != nil {
		d.logger.ErrorContext(ctx, "record notification result failed",
			"channel", n.Channel,
			"notification_id", id,
			"status", status,
			"err", err,
		)
	}
	return nil
}
