package notify

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/tutorhub/bookingengine/libs/otel"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// LogEntry is one delivery attempt.
type LogEntry struct {
	MessageID   string
	BookingID   string
	Kind        Kind
	Recipient   string
	Status      string
	Error       string
	Traceparent string
	Tracestate  string
	At          time.Time
}

type Log interface {
	RecordNotification(ctx context.Context, e LogEntry) error
}

// Logged records every attempt made through next. A failed record is logged
// and otherwise ignored; it never changes the delivery result.
type Logged struct {
	next   Dispatcher
	log    Log
	logger *slog.Logger
	now    func() time.Time
}

func NewLogged(next Dispatcher, log Log, logger *slog.Logger) *Logged {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logged{next: next, log: log, logger: logger, now: time.Now}
}

func (l *Logged) Send(ctx context.Context, msg Message) error {
	sendErr := l.next.Send(ctx, msg)

	entry := LogEntry{
		MessageID: msg.ID,
		BookingID: msg.Booking.ID,
		Kind:      msg.Kind,
		Recipient: msg.Recipient.Email,
		Status:    StatusSent,
		At:        l.now().UTC(),
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
	}
	entry.Traceparent, entry.Tracestate = otelx.TraceContextStrings(ctx)

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := l.log.RecordNotification(logCtx, entry); err != nil {
		l.logger.Warn("notification log write failed", "err", err, "booking_id", msg.Booking.ID, "kind", msg.Kind)
	}
	return sendErr
}
