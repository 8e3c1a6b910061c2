// Package notify delivers booking notifications. Delivery is best-effort:
// callers record failures but never undo a booking because of them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindAdminNewBooking     Kind = "admin_new_booking"
)

type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Message struct {
	// ID is stable per booking and kind so downstream consumers can dedupe.
	ID           string
	Kind         Kind
	Recipient    Recipient
	Booking      model.Booking
	BusinessName string
	Location     *time.Location
}

func MessageID(bookingID string, kind Kind) string {
	return bookingID + ":" + string(kind)
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }

// Fanout delivers to every dispatcher and reports all failures together.
type Fanout []Dispatcher

func (f Fanout) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, d := range f {
		if err := d.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dispatchErr(channel string, err error) error {
	if errors.Is(err, model.ErrNotificationDispatch) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", channel, model.ErrNotificationDispatch, err)
}
